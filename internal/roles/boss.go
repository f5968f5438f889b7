package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/spec"
)

var bossAccepts = mailbox.Kinds(mailbox.KindManagerReport, mailbox.KindShare)

// HandleSpec plans s with one LLM call and delegates the plan to the assigned manager.
// An incomplete org chart is returned as org.ErrAssignment.
func (e *Env) HandleSpec(ctx context.Context, s spec.Spec, job Job) error {
	a, err := org.AssignDefault(e.Org, e.bossID())
	if err != nil {
		return err
	}
	project := s.Project
	if project == "" {
		project = spec.DefaultProject
	}
	plan, err := e.Plan(ctx, s)
	if err != nil {
		return err
	}
	if job.Workdir != "" {
		if _, err := report.WriteArtifact(job.Workdir, "10-boss-plan.md", plan); err != nil {
			slog.Warn("write plan artifact", "job", job.ID, "err", err)
		}
	}
	meta := Meta{Project: project, JobID: job.ID, Workdir: job.Workdir}
	body := meta.Wrap(memory.Compact(plan, "boss_plan_to_manager", memory.DefaultMaxChars))
	if err := e.deliver(ctx, a.BossID, a.ManagerID, "委任: "+project, body, mailbox.KindBossPlan); err != nil {
		return fmt.Errorf("deliver boss_plan: %w", err)
	}
	e.remember(a.BossID, "plan: "+project, plan)
	return nil
}

// BossTick folds manager reports into outputs/report.md and forwards escalations to the board.
func (e *Env) BossTick(ctx context.Context) error {
	bossID := e.bossID()
	return e.drain(ctx, bossID, "boss", bossAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		meta := ParseMeta(msg.Body)
		decisions := append([]string{e.subordinateSummary(bossID)}, bullets(msg.Body, 15)...)
		e.remember(bossID, fmt.Sprintf("report from %s kind=%s", msg.From, msg.Kind),
			memory.Compact(msg.Body, "boss_memory_report", memory.DefaultMaxChars))

		escalate := strings.Contains(strings.ToUpper(msg.Body), EscalateToBoss) && !Balloted(msg.Body)
		jobID := meta.JobID
		if jobID == "" {
			jobID = h.Stem()
		}
		entry := report.Entry{
			Input:     msg.Title,
			Project:   meta.Project,
			JobID:     jobID,
			Workdir:   meta.Workdir,
			OK:        !escalate,
			Note:      fmt.Sprintf("社長: 報告受領 kind=%s from=%s", msg.Kind, msg.From),
			Summary:   msg.Title,
			Decisions: decisions,
		}
		if _, err := report.Update(e.OutputsDir, entry); err != nil {
			eventlog.Appendf(e.Root, "boss_tick: report update failed: %v", err)
		} else {
			_ = eventlog.Append(e.Root, "boss_tick: report updated")
		}

		if !escalate {
			return nil
		}
		body := memory.Compact(msg.Body, "boss_to_board", 3500)
		if err := e.deliver(ctx, bossID, BoardID, "要判断: "+msg.Title, body, mailbox.KindVoteRequest); err != nil {
			return fmt.Errorf("deliver vote_request: %w", err)
		}
		if _, err := report.AppendHumanJudgement(e.OutputsDir, "取締役会判断待ち: "+msg.Title, "mail="+h.Name()); err != nil {
			slog.Warn("append human judgement", "err", err)
		}
		return nil
	})
}

func (e *Env) subordinateSummary(bossID string) string {
	var subs []string
	if e.Org != nil {
		if b, ok := e.Org.Find(bossID); ok {
			for _, id := range b.CanCommand {
				subs = append(subs, fmt.Sprintf("%s(%s)", id, e.displayName(id)))
			}
		}
	}
	return fmt.Sprintf("直属部下数=%d: %s", len(subs), strings.Join(subs, ", "))
}
