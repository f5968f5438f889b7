package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/org"
)

func loadOrg(root string) (*org.Organization, config.Runtime, error) {
	l := config.NewLoader(root, 0)
	rt, err := l.Runtime()
	if err != nil {
		return nil, rt, err
	}
	o, err := l.Org()
	return o, rt, err
}

func newOrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Print the organization chart and the default assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, rt, err := loadOrg(config.MustRootFrom(cmd.Context()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range o.Roots() {
				o.Walk(r.ID, func(a org.Agent, depth int) {
					_, _ = fmt.Fprintf(out, "%s%s %s (%s, %s)\n", strings.Repeat("  ", depth), a.Emoji, a.DisplayName(), a.ID, a.Role)
				})
			}
			a, err := org.AssignDefault(o, rt.BossID)
			if err != nil {
				_, _ = fmt.Fprintf(out, "\nassignment: %v\n", err)
				return nil
			}
			_, _ = fmt.Fprintf(out, "\nassignment: boss=%s manager=%s lead=%s worker=%s branch=%s\n",
				a.BossID, a.ManagerID, a.LeadID, a.WorkerID, a.TeamBranch())
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the chart for duplicate ids and reporting cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, _, err := loadOrg(config.MustRootFrom(cmd.Context()))
			if err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok (%d agents)\n", len(o.Agents))
			return nil
		},
	})
	return cmd
}
