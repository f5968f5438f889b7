// Package merge merges approved team branches into main at most once per key.
package merge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/internal/git"
	"github.com/ankittk/usagi/internal/otel"
	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/pkg/models"
)

// Merger serializes merges into main. Ledger is optional; without it only the branch
// existence check guards against repeats.
type Merger struct {
	Repo   *git.Repo
	Ledger store.Ledger
	Root   string

	mu sync.Mutex
}

// Outcome is the result of one Merge call.
type Outcome struct {
	Result string
	Detail string
}

// Merge merges branch into main, removing worktree first. key identifies the approval
// that triggered it; a key already recorded as merged or skipped is not merged again.
// Failures are logged and recorded, never returned.
func (m *Merger) Merge(ctx context.Context, key, branch, worktree string) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Ledger != nil {
		done, err := m.Ledger.MergeDone(ctx, key)
		if err != nil {
			slog.Warn("merge ledger lookup failed", "key", key, "err", err)
		} else if done {
			slog.Info("merge already recorded", "key", key, "branch", branch)
			return Outcome{Result: models.MergeSkipped, Detail: "already recorded"}
		}
	}

	var out Outcome
	switch {
	case m.Repo == nil:
		out = Outcome{Result: models.MergeSkipped, Detail: "no repository"}
	case !m.Repo.BranchExists(ctx, branch):
		out = Outcome{Result: models.MergeSkipped, Detail: "branch not found"}
	default:
		if worktree != "" {
			if err := m.Repo.WorktreeRemove(ctx, worktree); err != nil {
				slog.Warn("merge worktree remove failed", "worktree", worktree, "err", err)
			}
		}
		if err := m.Repo.MergeToMainAndDeleteBranch(ctx, branch); err != nil {
			slog.Error("merge failed", "branch", branch, "err", err)
			out = Outcome{Result: models.MergeFailed, Detail: err.Error()}
		} else {
			out = Outcome{Result: models.MergeMerged}
		}
	}

	otel.RecordMerge(ctx, out.Result)
	eventlog.Appendf(m.Root, "merge %s branch=%s result=%s", key, branch, out.Result)
	if m.Ledger != nil {
		rec := models.Merge{Key: key, Branch: branch, Result: out.Result, Detail: out.Detail, CreatedAt: time.Now().UTC()}
		if err := m.Ledger.RecordMerge(ctx, rec); err != nil {
			slog.Error("record merge", "key", key, "err", err)
		}
	}
	return out
}
