package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/promptpilot/promptpilot/internal/event"
	"github.com/promptpilot/promptpilot/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate, test, and migrate policy files",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a policy file and report every problem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		problems := policy.ValidateFile(args[0])
		if problems == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", args[0], p)
		}
		return fmt.Errorf("%s: invalid policy (%d problems)", args[0], len(problems))
	},
}

var (
	testPrompt     string
	testType       string
	testConfidence string
	testTool       string
	testRepo       string
	testTag        string
	testExplain    bool
)

var policyTestCmd = &cobra.Command{
	Use:   "test <file>",
	Short: "Evaluate a hypothetical prompt against a policy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := policy.Load(args[0])
		if err != nil {
			return err
		}
		in := policy.Input{
			PromptID:   uuid.NewString(),
			SessionID:  "test",
			Text:       testPrompt,
			Type:       event.PromptType(testType),
			Confidence: event.Confidence(testConfidence),
			ToolID:     testTool,
			Repo:       testRepo,
			SessionTag: testTag,
		}
		if testExplain {
			fmt.Fprint(cmd.OutOrStdout(), policy.Explain(p, in))
			return nil
		}
		d := policy.Evaluate(p, in)
		fmt.Fprintf(cmd.OutOrStdout(), "decision: %s", d.Action.Type)
		if d.Action.Value != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " value=%q", d.Action.Value)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nrule: %s\n%s\n", orDefault(d.MatchedRuleID, "<default>"), d.Explanation)
		return nil
	},
}

var migrateOutput string

var policyMigrateCmd = &cobra.Command{
	Use:   "migrate <file>",
	Short: "Rewrite a v0 policy file as v1",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := policy.MigrateFile(args[0], migrateOutput); err != nil {
			return err
		}
		dst := migrateOutput
		if dst == "" {
			dst = args[0]
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s -> %s\n", args[0], dst)
		return nil
	},
}

var policyHashCmd = &cobra.Command{
	Use:   "hash <file>",
	Short: "Print a policy file's content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := policy.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.ContentHash())
		return nil
	},
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	policyTestCmd.Flags().StringVar(&testPrompt, "prompt", "", "prompt text")
	policyTestCmd.Flags().StringVar(&testType, "type", string(event.YesNo), "prompt type")
	policyTestCmd.Flags().StringVar(&testConfidence, "confidence", string(event.High), "detection confidence")
	policyTestCmd.Flags().StringVar(&testTool, "tool", "*", "tool id")
	policyTestCmd.Flags().StringVar(&testRepo, "repo", "", "working directory")
	policyTestCmd.Flags().StringVar(&testTag, "session-tag", "", "session tag")
	policyTestCmd.Flags().BoolVar(&testExplain, "explain", false, "show the full per-rule trace")
	policyTestCmd.MarkFlagRequired("prompt")

	policyMigrateCmd.Flags().StringVarP(&migrateOutput, "output", "o", "", "write the migrated policy here instead of in place")

	policyCmd.AddCommand(policyValidateCmd, policyTestCmd, policyMigrateCmd, policyHashCmd)
	rootCmd.AddCommand(policyCmd)
}
