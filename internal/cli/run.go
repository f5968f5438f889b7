package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
)

func newRunCmd() *cobra.Command {
	var (
		rounds   int
		dbDriver string
		dbURL    string
		noGit    bool
	)
	cmd := &cobra.Command{
		Use:   "run [spec.md ...]",
		Short: "Process inputs once and drain the mailboxes without the watcher",
		Long: "run processes each given input like the watcher would, then runs --rounds control-loop rounds.\n" +
			"With no inputs it only drains the mailboxes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			inputs := make([]string, 0, len(args))
			for _, a := range args {
				p, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				inputs = append(inputs, p)
			}
			opts := daemon.StartOptions{Root: root, DBDriver: dbDriver, DBURL: dbURL, NoGit: noGit}
			if err := daemon.RunOnce(cmd.Context(), opts, rounds, inputs...); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "done (%d inputs, %d rounds)\n", len(inputs), rounds)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", daemon.DefaultRounds, "Control-loop rounds to run after processing inputs")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "sqlite", "Ledger driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().BoolVar(&noGit, "no-git", false, "Run without git worktrees")
	return cmd
}
