package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptpilot/promptpilot/internal/policy"
	"github.com/promptpilot/promptpilot/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect and verify the decision trace",
}

var (
	tailCount   int
	tailExplain bool
)

var traceTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent decisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := trace.New(cfg.Trace.Path)
		if err != nil {
			return err
		}
		entries, err := tr.Tail(tailCount)
		if err != nil {
			return err
		}
		if tailExplain {
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), policy.ExplainDecision(e.Decision))
			}
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

// chainPath is where the sealed chain lives alongside a trace file.
func chainPath(tracePath string) string {
	return tracePath + ".chain"
}

// defaultVerifyPath picks the file `trace verify` checks when no
// argument is given: the sealed chain on a chained install, the plain
// trace otherwise.
func defaultVerifyPath() string {
	if cfg.Trace.Chained {
		return chainPath(cfg.Trace.Path)
	}
	return cfg.Trace.Path
}

var traceVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify the hash chain of a sealed trace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultVerifyPath()
		if len(args) == 1 {
			path = args[0]
		}
		rep, err := trace.VerifyChain(path)
		if err != nil {
			return err
		}
		if !rep.Valid {
			return fmt.Errorf("%s: chain BROKEN at entry %d (%d entries verified before it)",
				path, rep.FirstBrokenAt, rep.EntriesChecked)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: chain valid, %d entries checked\n", path, rep.EntriesChecked)
		return nil
	},
}

func init() {
	traceTailCmd.Flags().IntVarP(&tailCount, "count", "n", 20, "number of entries to print")
	traceTailCmd.Flags().BoolVar(&tailExplain, "explain", false, "render entries for humans instead of JSON")
	traceCmd.AddCommand(traceTailCmd, traceVerifyCmd)
	rootCmd.AddCommand(traceCmd)
}
