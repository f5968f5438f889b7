package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	var (
		lf    ledgerFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List processed inputs from the ledger, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := lf.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			jobs, err := ledger.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "JOB\tPROJECT\tRESULT\tSOURCE\tSTARTED")
			for _, j := range jobs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.JobID, j.Project, j.Result, j.Source, j.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	lf.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "Max jobs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job_id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := lf.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			j, err := ledger.GetJob(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(j)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "merges",
		Short: "List merge attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := lf.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			merges, err := ledger.ListMerges(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "KEY\tBRANCH\tRESULT\tDETAIL")
			for _, m := range merges {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Key, m.Branch, m.Result, m.Detail)
			}
			return tw.Flush()
		},
	})
	return cmd
}
