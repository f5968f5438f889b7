package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/vote"
)

func newVoteCmd() *cobra.Command {
	var lf ledgerFlags
	cmd := &cobra.Command{
		Use:   "vote",
		Short: "Run or list escalation ballots",
	}
	lf.bind(cmd)
	cmd.AddCommand(newVoteRunCmd(&lf))
	cmd.AddCommand(newVoteListCmd(&lf))
	return cmd
}

func newVoteRunCmd(lf *ledgerFlags) *cobra.Command {
	var (
		project         string
		situation       string
		leadApproved    bool
		managerDecision string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask the board to vote on a situation and record the ballot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if project == "" {
				return errors.New("--project is required")
			}
			root := config.MustRootFrom(cmd.Context())
			rt, err := config.NewLoader(root, 0).Runtime()
			if err != nil {
				return err
			}
			backend, err := llm.New(rt.LLM, root)
			if err != nil {
				return err
			}
			ledger, err := lf.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			eng := &vote.Engine{
				Backend:   backend,
				Model:     rt.LLM.Model,
				Ledger:    ledger,
				Root:      root,
				InputsDir: config.Resolve(root, rt.Watch.InputsDir),
				BossID:    rt.BossID,
				Voters:    rt.Vote.Voters,
			}
			res, err := eng.Escalate(cmd.Context(), vote.Request{
				Project:         project,
				LeadApproved:    leadApproved,
				ManagerDecision: managerDecision,
				Context:         situation,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), vote.RenderVotes(res))
			if res.QuestionsPath != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nquestions for humans: %s\n", res.QuestionsPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project name")
	cmd.Flags().StringVar(&situation, "context", "", "Situation the voters judge")
	cmd.Flags().BoolVar(&leadApproved, "lead-approved", false, "Whether the lead approved the change")
	cmd.Flags().StringVar(&managerDecision, "manager-decision", "ESCALATE_TO_BOSS", "Manager decision token")
	return cmd
}

func newVoteListCmd(lf *ledgerFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded ballots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := lf.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()
			ballots, err := ledger.ListBallots(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "BALLOT\tPROJECT\tOUTCOME\tVOTES\tCREATED")
			for _, b := range ballots {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.BallotID, b.Project, b.Outcome, len(b.Votes), b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max ballots to list")
	return cmd
}
