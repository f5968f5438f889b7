package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
)

var managerAccepts = mailbox.Kinds(mailbox.KindBossPlan, mailbox.KindReviewResult, mailbox.KindAssistResponse)

// ManagerTick handles boss plans (digest and delegate) and review results (merge decision).
func (e *Env) ManagerTick(ctx context.Context, a org.Assignment) error {
	return e.drain(ctx, a.ManagerID, "manager", managerAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		switch msg.Kind {
		case mailbox.KindBossPlan:
			return e.managerDelegate(ctx, a, msg)
		case mailbox.KindReviewResult:
			return e.managerDecide(ctx, a, h, msg)
		default:
			e.remember(a.ManagerID, "assist from "+msg.From, msg.Body)
			return nil
		}
	})
}

func (e *Env) managerDelegate(ctx context.Context, a org.Assignment, msg mailbox.Message) error {
	meta := ParseMeta(msg.Body)
	mem := e.recall(a.ManagerID, 1800)
	prompt := "## 社長からの委任\n" + msg.Body + "\n\n## あなたのメモリ（過去の判断/方針）\n" + orNone(mem) + "\n"
	digest, err := e.generate(ctx, managerDigestSystem, prompt)
	if err != nil {
		return fmt.Errorf("manager digest: %w", err)
	}
	e.remember(a.ManagerID, "digest: "+msg.Title, digest)

	body := meta.Wrap(digest)
	if err := e.deliver(ctx, a.ManagerID, a.LeadID, "部長指示: "+msg.Title, body, mailbox.KindImplRequest); err != nil {
		return fmt.Errorf("deliver impl_request: %w", err)
	}
	if err := e.deliver(ctx, a.ManagerID, a.BossID, "部長報告: "+msg.Title, body, mailbox.KindManagerReport); err != nil {
		return fmt.Errorf("deliver manager_report: %w", err)
	}
	for _, peer := range e.Org.SiblingManagers(a) {
		if err := e.deliver(ctx, a.ManagerID, peer.ID, "協力依頼: "+msg.Title, meta.Wrap(siblingAssistIntro+digest), mailbox.KindAssistRequest); err != nil {
			slog.Warn("assist request failed", "to", peer.ID, "err", err)
		}
	}
	return nil
}

func (e *Env) managerDecide(ctx context.Context, a org.Assignment, h mailbox.Handle, msg mailbox.Message) error {
	meta := ParseMeta(msg.Body)
	branch := a.TeamBranch()
	reviewCompact := memory.Compact(msg.Body, "manager_review", memory.DefaultMaxChars)

	decision, token := e.Decide(ctx, "", reviewCompact, branch)
	approved := LeadApproved(msg.Body)

	mergeLine := ""
	if approved && token == MergeOK {
		mergeLine = e.MergeTeam(ctx, a, h.Name())
	}
	needVote := !approved || token == EscalateToBoss

	var b strings.Builder
	b.WriteString("- manager_decision: " + token + "\n")
	b.WriteString("- lead_approved: " + titleBool(approved) + "\n")
	if mergeLine != "" {
		b.WriteString("- " + mergeLine + "\n")
	}
	if needVote {
		b.WriteString("\n" + EscalateToBoss + "\n")
	}
	b.WriteString("\n## 部長判断\n" + strings.TrimSpace(decision) + "\n")
	b.WriteString("\n(元のレビュー結果)\n" + reviewCompact)
	body := meta.Wrap(b.String())

	if meta.Workdir != "" {
		if _, err := report.WriteArtifact(meta.Workdir, "60-manager-decision.md", body); err != nil {
			slog.Warn("write decision artifact", "err", err)
		}
	}
	if err := e.deliver(ctx, a.ManagerID, a.BossID, "部長報告(レビュー結果): "+msg.Title, body, mailbox.KindManagerReport); err != nil {
		return fmt.Errorf("deliver manager_report: %w", err)
	}
	e.remember(a.ManagerID, "decision: "+msg.Title, token)
	return nil
}
