package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/vote"
)

var boardAccepts = mailbox.Kinds(mailbox.KindVoteRequest)

// BoardTick runs a ballot for every vote request the boss forwarded.
func (e *Env) BoardTick(ctx context.Context) error {
	return e.drain(ctx, BoardID, "board", boardAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		if e.Vote == nil || !e.Runtime.Vote.Enabled {
			eventlog.Appendf(e.Root, "board: voting disabled, %s left for a human", h.Name())
			return nil
		}
		req := EscalationRequest(msg.Body)
		res, err := e.Vote.Escalate(ctx, req)
		if err != nil {
			return fmt.Errorf("escalate: %w", err)
		}
		details := "ballot=" + res.BallotID
		if res.QuestionsPath != "" {
			details += " questions=" + res.QuestionsPath
		}
		if _, err := report.AppendHumanJudgement(e.OutputsDir, fmt.Sprintf("3人格投票(%s): %s", req.Project, res.Outcome), details); err != nil {
			slog.Warn("append human judgement", "err", err)
		}
		return nil
	})
}

// EscalationRequest reads the project, lead_approved and manager_decision lines of a
// vote_request body. The whole body is the vote context.
func EscalationRequest(body string) vote.Request {
	meta := ParseMeta(body)
	req := vote.Request{Project: meta.Project, Workdir: meta.Workdir, Context: body}
	seenApproved := false
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := field(line)
		if !ok {
			continue
		}
		switch k {
		case "lead_approved":
			if !seenApproved {
				req.LeadApproved = strings.EqualFold(v, "true")
				seenApproved = true
			}
		case "manager_decision":
			if req.ManagerDecision == "" {
				req.ManagerDecision = v
			}
		}
	}
	if req.ManagerDecision == "" {
		req.ManagerDecision = EscalateToBoss
	}
	return req
}
