package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/spec"
)

func newValidateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <spec.md>",
		Short: "Parse a request file and report missing sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := spec.Parse(string(b))
			if err != nil {
				return err
			}
			res := spec.Validate(s, strict)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "project: %s\ntasks: %d\n", s.Project, len(s.Tasks))
			for _, w := range res.Warnings {
				_, _ = fmt.Fprintf(out, "warning: %s\n", w)
			}
			for _, e := range res.Errors {
				_, _ = fmt.Fprintf(out, "error: %s\n", e)
			}
			if !res.OK {
				return errors.New("validation failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat a missing objective or task list as an error")
	return cmd
}
