package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
)

func newStopCmd() *cobra.Command {
	var fileOnly bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running usagi daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			if fileOnly {
				if err := daemon.RequestStop(root); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.StopPath(root))
				return nil
			}
			stopped, err := daemon.Stop(cmd.Context(), root)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "usagi is not running")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&fileOnly, "file", false, "Only write the STOP file and return")
	return cmd
}
