package permission

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/supervision/internal/event"
)

type capture struct {
	mu     sync.Mutex
	events []event.Event
	ch     chan event.Event
}

func newCapture() *capture {
	return &capture{ch: make(chan event.Event, 10)}
}

func (c *capture) Publish(e event.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.ch <- e
}

func (c *capture) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return event.Event{}
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*", "github_create_issue", true},
		{"github_*", "github_create_issue", true},
		{"github_*", "gitlab_create_issue", false},
		{"*_issue", "github_create_issue", true},
		{"*_issue", "github_close_pr", false},
		{"github_*_issue", "github_create_issue", true},
		{"fs_{read,list}*", "fs_read_file", true},
		{"fs_{read,list}*", "fs_write_file", false},
		{"search", "search", true},
		{"search", "searches", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchWildcard(tt.pattern, tt.name))
		})
	}
}

func TestBestMatch(t *testing.T) {
	patterns := map[string]int{
		"*":            1,
		"create_*":     2,
		"create_issue": 3,
		"create_is*":   4,
	}

	key, ok := BestMatch(patterns, "create_issue")
	require.True(t, ok)
	assert.Equal(t, "create_issue", key)

	key, ok = BestMatch(patterns, "create_isbn")
	require.True(t, ok)
	assert.Equal(t, "create_is*", key)

	key, ok = BestMatch(patterns, "delete_repo")
	require.True(t, ok)
	assert.Equal(t, "*", key)

	_, ok = BestMatch(map[string]int{"create_*": 1}, "delete_repo")
	assert.False(t, ok)
}

func TestChecker_CheckAllowDeny(t *testing.T) {
	c := NewChecker(nil)
	req := Request{SessionID: "ses_1", Tool: "fs_delete"}

	assert.NoError(t, c.Check(context.Background(), req, ActionAllow))

	err := c.Check(context.Background(), req, ActionDeny)
	require.Error(t, err)
	assert.True(t, IsRejectedError(err))
	assert.Equal(t, "Tool call denied by configuration", err.Error())

	err = c.Check(context.Background(), req, Action("maybe"))
	require.Error(t, err)
	assert.False(t, IsRejectedError(err))
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"", "allow", "deny", "ask"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}
	_, err := ParseAction("sometimes")
	assert.Error(t, err)
}

func TestChecker_AskOnce(t *testing.T) {
	events := newCapture()
	c := NewChecker(events)

	done := make(chan error, 1)
	go func() {
		done <- c.Ask(context.Background(), Request{SessionID: "ses_1", Tool: "fs_write"})
	}()

	required := events.next(t)
	assert.Equal(t, event.ConfirmationRequired, required.Type)
	assert.Equal(t, "fs_write", required.Tool)
	require.NotEmpty(t, required.RequestID)

	pending := c.Pending("ses_1")
	require.Len(t, pending, 1)
	assert.Equal(t, required.RequestID, pending[0].ID)

	require.NoError(t, c.Respond(required.RequestID, ReplyOnce))
	assert.NoError(t, <-done)

	resolved := events.next(t)
	assert.Equal(t, event.ConfirmationResolved, resolved.Type)
	require.NotNil(t, resolved.Granted)
	assert.True(t, *resolved.Granted)

	assert.False(t, c.IsApproved("ses_1", "fs_write"))
}

func TestChecker_AskAlwaysRemembers(t *testing.T) {
	events := newCapture()
	c := NewChecker(events)

	done := make(chan error, 1)
	go func() {
		done <- c.Ask(context.Background(), Request{SessionID: "ses_1", Tool: "fs_write"})
	}()
	required := events.next(t)
	require.NoError(t, c.Respond(required.RequestID, ReplyAlways))
	require.NoError(t, <-done)

	assert.True(t, c.IsApproved("ses_1", "fs_write"))
	assert.NoError(t, c.Ask(context.Background(), Request{SessionID: "ses_1", Tool: "fs_write"}))

	c.ClearSession("ses_1")
	assert.False(t, c.IsApproved("ses_1", "fs_write"))
}

func TestChecker_AskReject(t *testing.T) {
	events := newCapture()
	c := NewChecker(events)

	done := make(chan error, 1)
	go func() {
		done <- c.Ask(context.Background(), Request{SessionID: "ses_1", Tool: "fs_delete", CallID: "call_1"})
	}()
	required := events.next(t)
	require.NoError(t, c.Respond(required.RequestID, ReplyReject))

	err := <-done
	require.Error(t, err)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "call_1", rejected.CallID)
	assert.Equal(t, "fs_delete", rejected.Tool)
}

func TestChecker_AskCancelled(t *testing.T) {
	c := NewChecker(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Ask(ctx, Request{SessionID: "ses_1", Tool: "fs_write"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, c.Pending(""))
}

func TestChecker_RespondUnknown(t *testing.T) {
	c := NewChecker(nil)
	assert.ErrorIs(t, c.Respond("per_missing", ReplyOnce), ErrRequestNotFound)
}

func TestDoomLoopDetector(t *testing.T) {
	d := NewDoomLoopDetector(0)
	args := json.RawMessage(`{"q": "x"}`)

	assert.False(t, d.Observe("ses_1", "docs_search", args))
	assert.False(t, d.Observe("ses_1", "docs_search", json.RawMessage(`{"q":"x"}`)))
	assert.True(t, d.Observe("ses_1", "docs_search", args))

	assert.False(t, d.Observe("ses_2", "docs_search", args))

	assert.False(t, d.Observe("ses_1", "docs_search", json.RawMessage(`{"q":"y"}`)))
	d.Clear("ses_1")
	assert.False(t, d.Observe("ses_1", "docs_search", args))
}
