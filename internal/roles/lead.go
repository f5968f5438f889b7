package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
)

var leadAccepts = mailbox.Kinds(mailbox.KindImplRequest, mailbox.KindImplResult, mailbox.KindAssistResponse)

// LeadTick briefs the worker on implementation requests and reviews implementation results.
func (e *Env) LeadTick(ctx context.Context, a org.Assignment) error {
	return e.drain(ctx, a.LeadID, "lead", leadAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		switch msg.Kind {
		case mailbox.KindImplRequest:
			return e.leadBrief(ctx, a, msg)
		case mailbox.KindImplResult:
			return e.leadReview(ctx, a, msg)
		default:
			e.remember(a.LeadID, "assist from "+msg.From, msg.Body)
			return nil
		}
	})
}

func (e *Env) leadBrief(ctx context.Context, a org.Assignment, msg mailbox.Message) error {
	meta := ParseMeta(msg.Body)
	mem := e.recall(a.LeadID, 1800)
	prompt := "## 部長指示\n" + msg.Body + "\n\n## あなたのメモリ（過去の判断/レビュー観点）\n" + orNone(mem) + "\n"
	brief, err := e.generate(ctx, leadBriefSystem, prompt)
	if err != nil {
		return fmt.Errorf("lead brief: %w", err)
	}
	e.remember(a.LeadID, "brief: "+msg.Title, brief)
	if err := e.deliver(ctx, a.LeadID, a.WorkerID, "課長指示: "+msg.Title, meta.Wrap(brief), mailbox.KindWorkerRequest); err != nil {
		return fmt.Errorf("deliver worker_request: %w", err)
	}
	return nil
}

func (e *Env) leadReview(ctx context.Context, a org.Assignment, msg mailbox.Message) error {
	meta := ParseMeta(msg.Body)
	diff := memory.Compact(msg.Body, "lead_review_diff", memory.DefaultMaxChars)

	if peer, ok := e.Org.PeerReviewLead(a); ok {
		if err := e.deliver(ctx, a.LeadID, peer.ID, "レビュー協力依頼: "+msg.Title, meta.Wrap(peerReviewIntro+diff), mailbox.KindAssistRequest); err != nil {
			slog.Warn("peer review request failed", "to", peer.ID, "err", err)
		}
	}

	review, verdict := e.Review(ctx, diff)
	if meta.Workdir != "" {
		if _, err := report.WriteArtifact(meta.Workdir, "30-lead-review.md", review); err != nil {
			slog.Warn("write review artifact", "err", err)
		}
	}
	body := meta.Wrap("lead_review: " + verdict + "\n\n" + review + "\n\n" + diff)
	if err := e.deliver(ctx, a.LeadID, a.ManagerID, "レビュー結果: "+msg.Title, body, mailbox.KindReviewResult); err != nil {
		return fmt.Errorf("deliver review_result: %w", err)
	}
	e.remember(a.LeadID, "review: "+msg.Title, verdict)
	return nil
}
