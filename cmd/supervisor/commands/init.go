package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/supervision/internal/config"
	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/types"
)

var (
	initGlobal bool
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Write a starter supervision.json with a redacting guardian.

The file goes to <directory>/.supervision/supervision.json, or to the global
config directory with --global. Existing files are kept unless --force is set.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Write the global config instead of the project config")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.GlobalConfigPath()
	if !initGlobal {
		dir, err := GetWorkDir(workDir)
		if err != nil {
			return err
		}
		path = config.ProjectConfigPath(dir)
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(starterConfig(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func starterConfig() *types.Config {
	return &types.Config{
		Supervisors: []types.SupervisorConfig{{
			Type:        string(supervisor.KindGuardian),
			ID:          "guardian",
			Name:        "Content guardian",
			Permissions: []string{string(supervisor.PermModifyMessages)},
			Config: map[string]any{
				"rules":          []string{supervisor.RuleNoProfanity, supervisor.RuleNoPersonalInfo, supervisor.RuleNoHarmfulContent},
				"redact":         true,
				"checkResponses": true,
			},
		}},
		Timeout: &types.TimeoutConfig{Duration: "30s", Fallback: string(supervisor.ActionAllow)},
	}
}
