// Package guardian exposes the guardian content checks as an MCP server.
package guardian

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/types"
)

// Tool names.
const (
	ToolCheckContent    = "check_content"
	ToolApplyGuardrails = "apply_guardrails"
	ToolListRules       = "list_rules"
)

// NewServer creates an MCP server backed by g.
func NewServer(g *supervisor.Guardian, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"guardian",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool(ToolCheckContent,
		mcp.WithDescription("Checks text against the guardian rules and returns the decision as JSON"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Text to check"),
		),
	), checkHandler(g))

	s.AddTool(mcp.NewTool(ToolApplyGuardrails,
		mcp.WithDescription("Redacts profanity, email addresses, phone numbers and SSNs from text"),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Text to redact"),
		),
	), redactHandler(g))

	s.AddTool(mcp.NewTool(ToolListRules,
		mcp.WithDescription("Lists the active guardian rule phrases"),
	), rulesHandler(g))

	return s
}

func checkHandler(g *supervisor.Guardian) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := contentArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		decision := g.CheckContent(&types.Message{Role: types.RoleUser, Content: content})
		data, err := json.Marshal(decision)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func redactHandler(g *supervisor.Guardian) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := contentArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(g.ApplyGuardrails(content)), nil
	}
}

func rulesHandler(g *supervisor.Guardian) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(g.GetGuardrailRules())
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func contentArg(request mcp.CallToolRequest) (string, error) {
	v, ok := request.GetArguments()["content"]
	if !ok {
		return "", fmt.Errorf("content argument is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("content must be a string, got %T", v)
	}
	return s, nil
}
