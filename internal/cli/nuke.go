package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/daemon"
)

const nukeConfirm = "delete everything"

func newNukeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Delete .usagi (mailboxes, ledger, repo, logs); inputs/ and outputs/ are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			if st, _ := daemon.Status(cmd.Context(), root); st.Running {
				return fmt.Errorf("usagi is running (pid %d); run `usagi stop` first", st.PID)
			}
			dir := config.StateDir(root)
			files, size := dirUsage(dir)
			if files == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Nothing to delete at %s\n", dir)
				return nil
			}
			out := cmd.OutOrStdout()
			if !yes {
				_, _ = fmt.Fprintf(out, "About to delete %s (%d files, %d KiB).\nType %q to confirm: ", dir, files, size/1024, nukeConfirm)
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("aborted: no confirmation")
				}
				if strings.TrimSpace(line) != nukeConfirm {
					_, _ = fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("remove %s: %w", dir, err)
			}
			_, _ = fmt.Fprintf(out, "Deleted %s\n", dir)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func dirUsage(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		files++
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return files, size
}
