package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ankittk/usagi/internal/git"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/spec"
)

// Plan asks the boss persona for a plan of s.
func (e *Env) Plan(ctx context.Context, s spec.Spec) (string, error) {
	plan, err := e.generate(ctx, bossSystem, PlanPrompt(s))
	if err != nil {
		return "", fmt.Errorf("boss plan: %w", err)
	}
	return plan, nil
}

// Review runs the lead review of a compacted diff. A failed call reads as CHANGES_REQUESTED.
func (e *Env) Review(ctx context.Context, diffCompact string) (review, verdict string) {
	review, err := e.generate(ctx, leadReviewSystem, ReviewPrompt(diffCompact))
	if err != nil {
		slog.Warn("lead review failed; requesting changes", "err", err)
		return fmt.Sprintf("(review failed: %v)\n%s", err, ChangesRequested), ChangesRequested
	}
	return review, ReviewVerdict(review)
}

// Decide runs the manager merge decision. A failed call reads as ESCALATE_TO_BOSS.
func (e *Env) Decide(ctx context.Context, planCompact, reviewCompact, branch string) (decision, token string) {
	decision, err := e.generate(ctx, managerDecisionSystem, DecisionPrompt(planCompact, reviewCompact, branch))
	if err != nil {
		slog.Warn("manager decision failed; escalating", "branch", branch, "err", err)
		return fmt.Sprintf("(decision failed: %v)\n%s", err, EscalateToBoss), EscalateToBoss
	}
	return decision, DecisionToken(decision)
}

// MergeTeam merges a's team branch under key, honoring the merge policy, and returns a
// one-line "merge: ..." summary.
func (e *Env) MergeTeam(ctx context.Context, a org.Assignment, key string) string {
	switch {
	case !e.Runtime.Merge.Enabled():
		return "merge: disabled by policy"
	case e.Merger == nil:
		return "merge: no merger"
	}
	wt, _ := git.WorktreeDir(e.RepoRoot, a.LeadID)
	out := e.Merger.Merge(ctx, key, a.TeamBranch(), wt)
	line := "merge: " + out.Result
	if out.Detail != "" {
		line += " (" + firstLine(out.Detail) + ")"
	}
	return line
}
