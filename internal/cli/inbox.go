package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/mailbox"
)

func newInboxCmd() *cobra.Command {
	var (
		archived bool
		show     bool
	)
	cmd := &cobra.Command{
		Use:   "inbox <agent_id>",
		Short: "List an agent's pending (or archived) messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			list := mailbox.ListInbox
			if archived {
				list = mailbox.ListArchive
			}
			hs, err := list(root, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hs) == 0 {
				_, _ = fmt.Fprintln(out, "(empty)")
				return nil
			}
			if show {
				for _, h := range hs {
					m, err := mailbox.Read(h)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(out, "==> %s <==\n%s\n", h.Name(), mailbox.Encode(m))
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FILE\tKIND\tFROM\tTITLE")
			for _, h := range hs {
				m, err := mailbox.Read(h)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Name(), m.Kind, m.From, m.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&archived, "archive", false, "List the archive instead of the inbox")
	cmd.Flags().BoolVar(&show, "show", false, "Print full messages")
	return cmd
}
