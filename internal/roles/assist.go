package roles

import (
	"context"
	"fmt"

	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
)

var assistAccepts = mailbox.Kinds(mailbox.KindAssistRequest)

// AssistTarget is an agent that answers assist requests, with the persona it answers as.
type AssistTarget struct {
	AgentID  string
	RoleHint string
}

// AssistTargets lists the sibling managers and the peer review lead of a.
func (e *Env) AssistTargets(a org.Assignment) []AssistTarget {
	var out []AssistTarget
	for _, m := range e.Org.SiblingManagers(a) {
		out = append(out, AssistTarget{AgentID: m.ID, RoleHint: hint(m, "同一階層の部長")})
	}
	if p, ok := e.Org.PeerReviewLead(a); ok {
		out = append(out, AssistTarget{AgentID: p.ID, RoleHint: hint(p, "レビュー課長")})
	}
	return out
}

func hint(a org.Agent, fallback string) string {
	if a.Name != "" {
		return a.Name + "(" + fallback + ")"
	}
	return fallback
}

// AssistTick answers assist requests in agentID's inbox with short bullet-point advice.
func (e *Env) AssistTick(ctx context.Context, t AssistTarget) error {
	return e.drain(ctx, t.AgentID, "assist", assistAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		meta := ParseMeta(msg.Body)
		mem := e.recall(t.AgentID, 1500)
		prompt := "## 依頼\n" + memory.Compact(msg.Body, "assist_req_"+t.AgentID, memory.DefaultMaxChars) +
			"\n\n## あなたのメモリ\n" + orNone(mem)
		resp, err := e.generate(ctx, assistSystem(t.RoleHint), prompt)
		if err != nil {
			return fmt.Errorf("assist: %w", err)
		}
		e.remember(t.AgentID, "assist for "+msg.From, resp)
		to := msg.From
		if to == "" {
			to = e.bossID()
		}
		if err := e.deliver(ctx, t.AgentID, to, "協力返信: "+msg.Title, meta.Wrap(resp), mailbox.KindAssistResponse); err != nil {
			return fmt.Errorf("deliver assist_response: %w", err)
		}
		return nil
	})
}
