package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
	"github.com/ankittk/usagi/internal/status"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and each agent's last known state",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			out := cmd.OutOrStdout()
			st, err := daemon.Status(cmd.Context(), root)
			if err != nil {
				return err
			}
			if st.Running {
				_, _ = fmt.Fprintf(out, "usagi running (pid %d, addr %s)\n", st.PID, st.Addr)
			} else {
				_, _ = fmt.Fprintln(out, "usagi not running")
			}

			agents := status.New(root).Sorted()
			if len(agents) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "AGENT\tSTATE\tTASK\tUPDATED")
			for _, a := range agents {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.AgentID, a.State, a.Task, a.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	return cmd
}
