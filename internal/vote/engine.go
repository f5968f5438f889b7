package vote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/otel"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/secretary"
	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/pkg/models"
)

const systemPrompt = "あなたは社長の人格の一つです。提示された状況について、進めるか止めるかを判断してください。\n" +
	"出力に必ず " + llm.ChoiceVote + " を含めてください。"

// Engine runs ballots. Ledger and Workdir-bound artifacts are optional.
type Engine struct {
	Backend   llm.Backend
	Model     string
	Ledger    store.Ledger
	Root      string
	InputsDir string
	BossID    string
	Voters    []string
}

// Request is one escalation raised by the manager.
type Request struct {
	Project         string
	LeadApproved    bool
	ManagerDecision string
	Context         string
	Workdir         string
}

// Result is the outcome of Escalate.
type Result struct {
	BallotID      string
	Outcome       string
	Votes         []Vote
	QuestionsPath string
}

// Run asks each voter independently. A voter whose call fails abstains with the error as reason.
func (e *Engine) Run(ctx context.Context, situation string, voters []string) []Vote {
	votes := make([]Vote, len(voters))
	var g errgroup.Group
	for i, id := range voters {
		g.Go(func() error {
			votes[i] = e.ask(ctx, id, situation)
			return nil
		})
	}
	_ = g.Wait()
	return votes
}

func (e *Engine) ask(ctx context.Context, voterID, situation string) Vote {
	prompt := systemPrompt + "\n\n人格: " + voterID + "\n\n状況:\n" + situation + "\n"
	out, err := e.Backend.Generate(ctx, prompt, e.Model)
	if err != nil {
		slog.Warn("vote call failed", "voter", voterID, "err", err)
		return Vote{VoterID: voterID, Decision: models.DecisionAbstain, Reason: err.Error()}
	}
	return Vote{VoterID: voterID, Decision: ParseDecision(out), Reason: strings.TrimSpace(out)}
}

// Escalate runs the ballot for req, records it and, unless it approves, places the human
// question set as a new input for the boss.
func (e *Engine) Escalate(ctx context.Context, req Request) (Result, error) {
	if req.Project == "" {
		req.Project = "usagi-project"
	}
	voters := Voters(e.Voters, e.BossID)
	votes := e.Run(ctx, req.Context, voters)
	res := Result{BallotID: uuid.NewString(), Outcome: Decide(votes), Votes: votes}
	otel.RecordVote(ctx, res.Outcome)
	eventlog.Appendf(e.Root, "vote %s project=%s outcome=%s", res.BallotID, req.Project, res.Outcome)

	if e.Ledger != nil {
		b := models.Ballot{BallotID: res.BallotID, Project: req.Project, Outcome: res.Outcome, Votes: votes, CreatedAt: time.Now().UTC()}
		if err := e.Ledger.RecordBallot(ctx, b); err != nil {
			slog.Error("record ballot", "ballot", res.BallotID, "err", err)
		}
	}
	if req.Workdir != "" {
		if _, err := report.WriteArtifact(req.Workdir, "70-vote.md", RenderVotes(res)); err != nil {
			slog.Warn("vote artifact", "err", err)
		}
	}
	if res.Outcome == models.DecisionApprove {
		return res, nil
	}

	lines := HumanQuestions(req.Project, req.LeadApproved, req.ManagerDecision, res.Outcome)
	p, err := secretary.PlaceInputForBoss(e.InputsDir, "人間判断: "+req.Project, lines)
	if err != nil {
		return res, fmt.Errorf("place human questions: %w", err)
	}
	res.QuestionsPath = p
	_ = secretary.AppendLog(e.Root, "secretary", strings.Join(lines, "\n"))
	return res, nil
}

// RenderVotes formats a ballot as markdown.
func RenderVotes(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# vote %s\n\noutcome: %s\n\n", r.BallotID, r.Outcome)
	for _, v := range r.Votes {
		reason := strings.ReplaceAll(strings.TrimSpace(v.Reason), "\n", " ")
		fmt.Fprintf(&b, "- %s: %s (%s)\n", v.VoterID, v.Decision, reason)
	}
	return b.String()
}
