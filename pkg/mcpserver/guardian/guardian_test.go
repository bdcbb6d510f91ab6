package guardian

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/supervision/internal/supervisor"
)

func newGuardian() *supervisor.Guardian {
	return supervisor.NewGuardian("sup_guard", "guard",
		supervisor.NewPermissions(supervisor.PermReadOnly),
		supervisor.GuardianOptions{Rules: []string{supervisor.RuleNoProfanity, supervisor.RuleNoPersonalInfo}},
	)
}

func call(t *testing.T, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	s := NewServer(newGuardian(), "test")
	tool := s.GetTool(name)
	require.NotNil(t, tool, "%s tool should exist", name)

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := tool.Handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content should be text")
	return tc.Text
}

func TestCheckContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		allowed bool
		reason  string
	}{
		{"clean", "hello there", true, ""},
		{"profanity", "what the hell", false, supervisor.ReasonProfanity},
		{"email", "mail me at a@b.io", false, supervisor.ReasonPersonalInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, ToolCheckContent, map[string]any{"content": tt.content})
			assert.False(t, result.IsError)

			var d supervisor.GuardianDecision
			require.NoError(t, json.Unmarshal([]byte(text(t, result)), &d))
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestApplyGuardrails(t *testing.T) {
	result := call(t, ToolApplyGuardrails, map[string]any{"content": "damn, call 555-123-4567"})
	assert.False(t, result.IsError)
	assert.Equal(t, "[FILTERED], call [PHONE]", text(t, result))
}

func TestListRules(t *testing.T) {
	result := call(t, ToolListRules, nil)
	var rules []string
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &rules))
	assert.Equal(t, []string{supervisor.RuleNoProfanity, supervisor.RuleNoPersonalInfo}, rules)
}

func TestMissingContent(t *testing.T) {
	result := call(t, ToolCheckContent, map[string]any{})
	assert.True(t, result.IsError)

	result = call(t, ToolApplyGuardrails, map[string]any{"content": 42})
	assert.True(t, result.IsError)
}
