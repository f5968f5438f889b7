package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/pkg/models"
)

func newEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the tail of the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := eventlog.Tail(config.MustRootFrom(cmd.Context()), n)
			if err != nil {
				return err
			}
			for _, l := range lines {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", models.DefaultEventTail, "Number of lines")
	return cmd
}
