package reqcontext

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(name string) Item {
	return Item{Type: ItemRule, Name: name, Content: name + " content"}
}

func tool(server, name, desc string) Item {
	return Item{Type: ItemTool, ServerName: server, Name: name, Description: desc}
}

func score(v float64) *float64 { return &v }

func TestStoreAdd(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("style"), IncludeMode: IncludeAlways}))
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("tests"), IncludeMode: IncludeManual}))

	items := s.List("ses_1")
	require.Len(t, items, 2)
	assert.Equal(t, "style", items[0].Name)
	assert.Equal(t, "tests", items[1].Name)
	assert.NotZero(t, items[0].AddedAt)
	assert.Empty(t, s.List("ses_2"))
}

func TestStoreRejectsAgentItems(t *testing.T) {
	s := NewStore()

	err := s.Add("ses_1", SessionItem{Item: rule("style"), IncludeMode: IncludeAgent})
	assert.True(t, errors.Is(err, ErrInvalidIncludeMode))

	err = s.Add("ses_1", SessionItem{Item: rule("style")})
	assert.True(t, errors.Is(err, ErrInvalidIncludeMode))
	assert.Empty(t, s.List("ses_1"))
}

func TestStoreRejectsInvalidItems(t *testing.T) {
	s := NewStore()

	err := s.Add("ses_1", SessionItem{Item: Item{Type: ItemTool, Name: "read"}, IncludeMode: IncludeManual})
	assert.True(t, errors.Is(err, ErrInvalidItem))

	err = s.Add("ses_1", SessionItem{Item: Item{Type: "prompt", Name: "x"}, IncludeMode: IncludeManual})
	assert.True(t, errors.Is(err, ErrInvalidItem))

	err = s.Add("ses_1", SessionItem{Item: Item{Type: ItemReference}, IncludeMode: IncludeManual})
	assert.True(t, errors.Is(err, ErrInvalidItem))
}

func TestStoreReplacesSameKey(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("style"), IncludeMode: IncludeManual}))
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("other"), IncludeMode: IncludeManual}))

	updated := rule("style")
	updated.Content = "new"
	require.NoError(t, s.Add("ses_1", SessionItem{Item: updated, IncludeMode: IncludeAlways}))

	items := s.List("ses_1")
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Content)
	assert.Equal(t, IncludeAlways, items[0].IncludeMode)
}

func TestStoreRemoveAndClear(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("a"), IncludeMode: IncludeManual}))
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("b"), IncludeMode: IncludeManual}))

	assert.True(t, s.Remove("ses_1", rule("a")))
	assert.False(t, s.Remove("ses_1", rule("a")))
	require.Len(t, s.List("ses_1"), 1)

	s.Clear("ses_1")
	assert.Empty(t, s.List("ses_1"))
}

func TestStoreListIsCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("ses_1", SessionItem{Item: rule("a"), IncludeMode: IncludeManual}))

	items := s.List("ses_1")
	items[0].Name = "changed"
	assert.Equal(t, "a", s.List("ses_1")[0].Name)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"", "abc", 0.0},
		{"file", "file", 1.0},
		{"file", "files", 0.8},
		{"abcd", "wxyz", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSelectorPicksRelevantItems(t *testing.T) {
	sel := NewSelector(0, 0)
	assert.Equal(t, DefaultThreshold, sel.Threshold)
	assert.Equal(t, DefaultTopK, sel.TopK)

	candidates := []Item{
		tool("weather", "forecast", "Get current weather forecast"),
		tool("fs", "read_file", "Read a file from disk"),
	}

	got := sel.Select("please read the file config", candidates)
	require.Len(t, got, 1)
	assert.Equal(t, "read_file", got[0].Name)
	assert.Equal(t, IncludeAgent, got[0].IncludeMode)
	require.NotNil(t, got[0].SimilarityScore)
	assert.GreaterOrEqual(t, *got[0].SimilarityScore, DefaultThreshold)
}

func TestSelectorOrdersAndLimits(t *testing.T) {
	sel := NewSelector(0.5, 2)
	candidates := []Item{
		rule("deploy"),
		rule("deployment checklist"),
		rule("deploy"),
		rule("database"),
	}
	candidates[2].Type = ItemReference

	got := sel.Select("deploy the service", candidates)
	require.Len(t, got, 2)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, *got[i-1].SimilarityScore, *got[i].SimilarityScore)
	}
}

func TestSelectorEmptyQuery(t *testing.T) {
	sel := NewSelector(0, 0)
	assert.Empty(t, sel.Select("", []Item{rule("deploy")}))
	assert.Empty(t, sel.Select("a an of", []Item{rule("deploy")}))
}

func TestAssembleOrder(t *testing.T) {
	sticky := []SessionItem{
		{Item: rule("style"), IncludeMode: IncludeAlways},
		{Item: rule("tests"), IncludeMode: IncludeManual},
	}
	selected := []RequestItem{
		{Item: tool("fs", "read", ""), IncludeMode: IncludeAgent, SimilarityScore: score(0.9)},
	}

	rc := Assemble("ses_1", sticky, selected)
	require.Len(t, rc.Items, 3)
	assert.Equal(t, "ses_1", rc.SessionID)
	assert.NotZero(t, rc.CreatedAt)
	assert.Equal(t, "style", rc.Items[0].Name)
	assert.Equal(t, IncludeAlways, rc.Items[0].IncludeMode)
	assert.Nil(t, rc.Items[0].SimilarityScore)
	assert.Equal(t, "tests", rc.Items[1].Name)
	assert.Equal(t, "read", rc.Items[2].Name)
	assert.Equal(t, IncludeAgent, rc.Items[2].IncludeMode)
}

func TestAssembleDedupe(t *testing.T) {
	sticky := []SessionItem{{Item: rule("style"), IncludeMode: IncludeManual}}
	selected := []RequestItem{
		{Item: rule("other"), IncludeMode: IncludeAgent, SimilarityScore: score(0.7)},
		{Item: rule("style"), IncludeMode: IncludeAgent, SimilarityScore: score(0.8)},
		{Item: rule("other"), IncludeMode: IncludeAgent, SimilarityScore: score(0.95)},
	}

	rc := Assemble("ses_1", sticky, selected)
	require.Len(t, rc.Items, 2)

	assert.Equal(t, "style", rc.Items[0].Name)
	assert.Equal(t, IncludeManual, rc.Items[0].IncludeMode)
	require.NotNil(t, rc.Items[0].SimilarityScore)
	assert.Equal(t, 0.8, *rc.Items[0].SimilarityScore)

	assert.Equal(t, "other", rc.Items[1].Name)
	assert.Equal(t, 0.95, *rc.Items[1].SimilarityScore)
}

func TestAssembleKeysIncludeServer(t *testing.T) {
	selected := []RequestItem{
		{Item: tool("a", "read", ""), IncludeMode: IncludeAgent},
		{Item: tool("b", "read", ""), IncludeMode: IncludeAgent},
	}
	rc := Assemble("ses_1", nil, selected)
	assert.Len(t, rc.Items, 2)
	assert.Len(t, rc.Filter(ItemTool), 2)
	assert.Empty(t, rc.Filter(ItemRule))
}

func TestBuilder(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Add("ses_1", SessionItem{Item: rule("style"), IncludeMode: IncludeAlways}))

	b := NewBuilder(store, NewSelector(0, 0))
	rc := b.Build("ses_1", "read the file", []Item{tool("fs", "read_file", "Read a file")})
	require.Len(t, rc.Items, 2)
	assert.Equal(t, "style", rc.Items[0].Name)
	assert.Equal(t, "read_file", rc.Items[1].Name)

	rc = NewBuilder(store, nil).Build("ses_1", "read the file", []Item{tool("fs", "read_file", "Read a file")})
	assert.Len(t, rc.Items, 1)
}
