package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/supervision/internal/supervisor"
	"github.com/opencode-ai/supervision/pkg/types"
)

// ErrContentBlocked is returned by check --fail when the guardian blocks.
var ErrContentBlocked = errors.New("content blocked")

var (
	checkRules []string
	checkFail  bool
)

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Run the guardian checks on text",
	Long: `Run the guardian content checks on text and print the decision as JSON.
Text is read from the arguments, or from stdin when none are given.

Examples:
  supervisor check "call me at 555-123-4567"
  echo "what the hell" | supervisor check --rule "no profanity" --fail`,
	RunE: runCheck,
}

var redactCmd = &cobra.Command{
	Use:   "redact [text]",
	Short: "Redact profanity and personal information from text",
	Long: `Replace profanity, email addresses, phone numbers and SSN-shaped
strings with placeholders. Text is read from the arguments, or from stdin
when none are given.`,
	RunE: runRedact,
}

func init() {
	checkCmd.Flags().StringArrayVar(&checkRules, "rule", []string{
		supervisor.RuleNoProfanity,
		supervisor.RuleNoPersonalInfo,
		supervisor.RuleNoHarmfulContent,
	}, "Guardian rule phrase (repeatable)")
	checkCmd.Flags().BoolVar(&checkFail, "fail", false, "Exit with an error when the content is blocked")
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	g := supervisor.NewGuardian("sup_cli_guardian", "guardian",
		supervisor.NewPermissions(supervisor.PermReadOnly),
		supervisor.GuardianOptions{Rules: checkRules},
	)
	decision := g.CheckContent(&types.Message{Role: types.RoleUser, Content: text})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		return err
	}

	if checkFail && !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrContentBlocked, decision.Reason)
	}
	return nil
}

func runRedact(cmd *cobra.Command, args []string) error {
	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), supervisor.Redact(text))
	return err
}

// inputText joins the arguments, or reads stdin when there are none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
