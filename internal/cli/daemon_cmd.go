package cli

import (
	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
)

func newDaemonCmd() *cobra.Command {
	var flags daemonFlags
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground(cmd, flags.options(config.MustRootFrom(cmd.Context())))
		},
	}
	flags.bind(cmd)
	return cmd
}
