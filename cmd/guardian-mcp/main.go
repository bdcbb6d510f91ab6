// Command guardian-mcp serves the guardian content checks as an MCP server
// over stdio.
package main

import (
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/supervision/internal/logging"
	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/mcpserver/guardian"
)

var version = "dev"

func main() {
	logging.Init(logging.Config{Level: logging.ParseLevel(os.Getenv("SUPERVISION_LOG_LEVEL")), Output: os.Stderr})

	rules := []string{supervisor.RuleNoProfanity, supervisor.RuleNoPersonalInfo, supervisor.RuleNoHarmfulContent}
	if env := os.Getenv("GUARDIAN_RULES"); env != "" {
		rules = strings.Split(env, ";")
	}

	g := supervisor.NewGuardian("sup_guardian_mcp", "guardian",
		supervisor.NewPermissions(supervisor.PermReadOnly),
		supervisor.GuardianOptions{Rules: rules},
	)

	if err := server.ServeStdio(guardian.NewServer(g, version)); err != nil {
		logging.Fatal().Err(err).Msg("guardian MCP server stopped")
	}
}
