// Package cli holds the cobra commands of the usagi binary.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
)

func NewRootCmd(version string) *cobra.Command {
	var rootOverride string

	cmd := &cobra.Command{
		Use:           "usagi",
		Short:         "usagi: a mailbox-driven boss/manager/lead/worker agent company",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.ResolveRoot(rootOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithRoot(cmd.Context(), root))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&rootOverride, "root", "", "Workspace root (default: cwd, env: USAGI_ROOT)")

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newInboxCmd())
	cmd.AddCommand(newOrgCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newVoteCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newApikeyCmd())
	cmd.AddCommand(newNukeCmd())

	// Hidden internal subcommand used by `usagi start` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
