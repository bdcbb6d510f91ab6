package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/supervision/pkg/types"
)

var (
	toolsMode       string
	toolsPermission string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools a session may call",
	Long: `Connect to the configured tool servers and list the tools visible to a
session with the given mode and tool permission.

Examples:
  supervisor tools                                   # chat session
  supervisor tools --mode autonomous                 # tools needing no confirmation
  supervisor tools --mode autonomous --permission never`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsMode, "mode", string(types.ModeChat), "Session mode (chat|autonomous)")
	toolsCmd.Flags().StringVar(&toolsPermission, "permission", string(types.ToolPermissionTool), "Autonomous tool permission (always|never|tool)")
}

func runTools(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := buildApp(ctx, dir)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	session := &types.Session{
		ID:             "ses_cli",
		Mode:           types.OperatingMode(toolsMode),
		ToolPermission: types.ToolPermission(toolsPermission),
	}
	tools, err := a.gate.Tools(ctx, session)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVER\tACTION\tDESCRIPTION\t")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", t.QualifiedName, t.Server, t.Action, t.Description)
	}
	return w.Flush()
}
