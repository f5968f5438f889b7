// Package approval runs the whole boss → worker → lead → manager chain synchronously
// for one spec, without waiting for inbox ticks.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/roles"
	"github.com/ankittk/usagi/internal/spec"
	"github.com/ankittk/usagi/internal/vote"
	"github.com/ankittk/usagi/pkg/models"
)

// voteContextMax bounds the situation text handed to the voters.
const voteContextMax = 3500

// Params configures one Run.
type Params struct {
	Env     *roles.Env
	Spec    spec.Spec
	JobID   string
	Workdir string
}

// Message is one step of the conversation log.
type Message struct {
	Agent   string
	Role    string
	Content string
}

// Result is what Run produced. Outcome is the ballot outcome when a vote ran, otherwise
// the manager's decision token.
type Result struct {
	Report     string
	Messages   []Message
	Assignment org.Assignment
	Outcome    string
}

// Run executes the chain for p.Spec. Only an incomplete org chart, a failed plan or a
// failed delivery to the boss is returned as an error; later steps degrade instead.
func Run(ctx context.Context, p Params) (Result, error) {
	env := p.Env
	if env == nil {
		return Result{}, errors.New("approval: nil env")
	}
	started := time.Now()
	bossID := env.Runtime.BossID
	if bossID == "" {
		bossID = "boss"
	}
	a, err := org.AssignDefault(env.Org, bossID)
	if err != nil {
		return Result{}, err
	}
	project := p.Spec.Project
	if project == "" {
		project = spec.DefaultProject
	}
	meta := roles.Meta{Project: project, JobID: p.JobID, Workdir: p.Workdir}
	r := &run{env: env, workdir: p.Workdir, res: Result{Assignment: a}}

	r.artifact("00-spec.md", roles.PlanPrompt(p.Spec))

	env.SetStatus(a.BossID, models.StateWorking, "plan: "+project)
	plan, err := env.Plan(ctx, p.Spec)
	env.SetStatus(a.BossID, models.StateIdle, "")
	if err != nil {
		return r.res, err
	}
	r.log(a.BossID, "planner", plan)
	r.artifact("10-boss-plan.md", plan)

	env.SetStatus(a.WorkerID, models.StateWorking, "impl: "+project)
	impl := env.Implement(ctx, a, project, plan, "approval: "+project)
	env.SetStatus(a.WorkerID, models.StateIdle, "")
	r.log(a.WorkerID, "coder", impl)
	r.artifact("20-worker-impl.diff", impl)
	if p.Workdir != "" {
		if err := writePatch(p.Workdir, impl); err != nil {
			slog.Warn("write patch", "workdir", p.Workdir, "err", err)
		} else {
			r.action("write .usagi.patch")
		}
	}

	env.SetStatus(a.LeadID, models.StateWorking, "review: "+project)
	review, _ := env.Review(ctx, memory.Compact(impl, "lead_review_impl", memory.DefaultMaxChars))
	env.SetStatus(a.LeadID, models.StateIdle, "")
	r.log(a.LeadID, "reviewer", review)
	r.artifact("30-lead-review.md", review)
	approved := strings.Contains(strings.ToUpper(review), roles.Approve)

	env.SetStatus(a.ManagerID, models.StateWorking, "decision: "+project)
	decision, token := env.Decide(ctx,
		memory.Compact(plan, "manager_plan", memory.DefaultMaxChars),
		memory.Compact(review, "manager_lead_review", memory.DefaultMaxChars),
		a.TeamBranch())
	r.log(a.ManagerID, "planner", decision)
	r.artifact("40-manager-decision.md", decision)
	r.res.Outcome = token

	mergeLine := ""
	if approved && token == roles.MergeOK {
		key := "approval-" + p.JobID
		if p.JobID == "" {
			key = fmt.Sprintf("approval-%d-%s", started.Unix(), mailbox.Slug(project))
		}
		mergeLine = env.MergeTeam(ctx, a, key)
		r.action(mergeLine)
	}

	voteLine, ballotID := "", ""
	needVote := !approved || token == roles.EscalateToBoss
	if needVote && env.Runtime.Vote.Enabled && env.Vote != nil {
		situation := memory.Compact("依頼: "+project+"\n\n社長計画:\n"+plan+"\n\n課長レビュー:\n"+review+"\n\n部長判断:\n"+decision+"\n",
			"vote_context", voteContextMax)
		res, err := env.Vote.Escalate(ctx, vote.Request{
			Project:         project,
			LeadApproved:    approved,
			ManagerDecision: token,
			Context:         situation,
			Workdir:         p.Workdir,
		})
		for _, v := range res.Votes {
			r.log(v.VoterID, "vote", "decision="+v.Decision+"\nreason="+v.Reason)
		}
		if err != nil {
			slog.Error("escalation failed", "project", project, "err", err)
			r.action("vote failed: " + err.Error())
		}
		if res.Outcome != "" {
			r.res.Outcome = res.Outcome
			voteLine = "vote: " + res.Outcome + " (ballot " + res.BallotID + ")"
			ballotID = res.BallotID
			r.action(voteLine)
		}
		if res.QuestionsPath != "" {
			r.action("secretary: ask human")
		}
	}

	body := reportBody(meta, token, approved, mergeLine, voteLine, ballotID, needVote, plan, review, decision)
	if err := deliver(ctx, env, a.ManagerID, a.BossID, "部長報告: "+project, body, mailbox.KindManagerReport); err != nil {
		env.SetStatus(a.ManagerID, models.StateIdle, "")
		return r.res, fmt.Errorf("deliver manager_report: %w", err)
	}
	r.action("mailbox: " + a.ManagerID + " -> " + a.BossID + " report")
	for _, peer := range env.Org.SiblingManagers(a) {
		if err := deliver(ctx, env, a.ManagerID, peer.ID, "共有: 開発判断 "+project, body, mailbox.KindShare); err != nil {
			slog.Warn("share failed", "to", peer.ID, "err", err)
			continue
		}
		r.action("mailbox: " + a.ManagerID + " -> " + peer.ID + " share")
	}
	env.SetStatus(a.ManagerID, models.StateIdle, "")

	r.res.Report = render(p.Spec, project, p.Workdir, started, r.res.Messages, r.actions)
	r.artifact("90-report.md", r.res.Report)
	return r.res, nil
}

type run struct {
	env     *roles.Env
	workdir string
	res     Result
	actions []string
}

func (r *run) log(agentID, role, content string) {
	name := agentID
	if a, ok := r.env.Org.Find(agentID); ok {
		name = a.DisplayName()
	}
	r.res.Messages = append(r.res.Messages, Message{Agent: name, Role: role, Content: content})
}

func (r *run) action(s string) { r.actions = append(r.actions, s) }

func (r *run) artifact(name, content string) {
	if r.workdir == "" {
		return
	}
	if _, err := report.WriteArtifact(r.workdir, name, content); err != nil {
		slog.Warn("write artifact", "name", name, "err", err)
	}
}

func deliver(ctx context.Context, env *roles.Env, from, to, title, body string, kind mailbox.Kind) error {
	_, err := mailbox.Deliver(ctx, env.Root, from, to, title, body, kind)
	return err
}

func writePatch(workdir, diff string) error {
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workdir, ".usagi.patch"), []byte(diff), 0o644)
}

// reportBody is the manager's report to the boss. The structured lines come first so
// compaction never drops them; the balloted bullet stops the boss from balloting again.
func reportBody(meta roles.Meta, token string, approved bool, mergeLine, voteLine, ballotID string, needVote bool, plan, review, decision string) string {
	var b strings.Builder
	b.WriteString("- manager_decision: " + token + "\n")
	b.WriteString("- lead_approved: " + titleBool(approved) + "\n")
	if mergeLine != "" {
		b.WriteString("- " + mergeLine + "\n")
	}
	if voteLine != "" {
		b.WriteString("- " + voteLine + "\n")
	}
	if ballotID != "" {
		b.WriteString("- " + roles.BallotedKey + ": " + ballotID + "\n")
	}
	if needVote {
		b.WriteString("\n" + roles.EscalateToBoss + "\n")
	}
	b.WriteString("\n## 社長計画(要約)\n" + plan + "\n\n")
	b.WriteString("## 課長レビュー(要約)\n" + review + "\n\n")
	b.WriteString("## 部長判断\n" + decision + "\n")
	return meta.Wrap(memory.Compact(b.String(), "manager_report_to_boss", voteContextMax))
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
