package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptpilot/promptpilot/internal/client"
	"github.com/promptpilot/promptpilot/internal/ipc"
)

var triggeredBy string

func controlCommand(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Send(op, triggeredBy)
			if err != nil {
				return err
			}
			if resp.Error != "" {
				return fmt.Errorf("%s (state: %s)", resp.Error, resp.State)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", resp.State)
			return nil
		},
	}
}

func init() {
	cmds := []*cobra.Command{
		controlCommand(ipc.OpStatus, "Report the running engine's state"),
		controlCommand(ipc.OpPause, "Suspend autonomous prompt handling"),
		controlCommand(ipc.OpResume, "Resume autonomous prompt handling"),
		controlCommand(ipc.OpStop, "Stop the running engine (terminal)"),
	}
	for _, c := range cmds {
		c.Flags().StringVar(&triggeredBy, "by", "", "who or what triggered this (recorded in the history)")
		rootCmd.AddCommand(c)
	}
}
