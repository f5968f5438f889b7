package cli

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/org"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify the runtime policy, org chart and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := config.MustRootFrom(cmd.Context())
			var problems []string

			// git backs team worktrees and merges.
			if _, err := exec.LookPath("git"); err != nil {
				problems = append(problems, "missing dependency: git (not found on PATH; use --no-git)")
			}

			o, rt, err := loadOrg(root)
			if err != nil {
				problems = append(problems, "config: "+err.Error())
			} else {
				if err := o.Validate(); err != nil {
					problems = append(problems, err.Error())
				}
				if _, err := org.AssignDefault(o, rt.BossID); err != nil {
					problems = append(problems, err.Error())
				}
				if _, err := llm.New(rt.LLM, root); err != nil {
					problems = append(problems, err.Error())
				}
				if (rt.LLM.Backend == "cli" || rt.LLM.Backend == "codex_cli") && len(rt.LLM.Command) > 0 {
					if _, err := exec.LookPath(rt.LLM.Command[0]); err != nil {
						problems = append(problems, fmt.Sprintf("missing dependency: %s (llm.command)", rt.LLM.Command[0]))
					}
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}
