package roles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ankittk/usagi/internal/git"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/report"
	"github.com/ankittk/usagi/internal/sandbox"
)

var workerAccepts = mailbox.Kinds(mailbox.KindWorkerRequest)

// WorkerTick implements briefs in the team worktree and returns the diff to the lead.
func (e *Env) WorkerTick(ctx context.Context, a org.Assignment) error {
	return e.drain(ctx, a.WorkerID, "worker", workerAccepts, func(ctx context.Context, h mailbox.Handle, msg mailbox.Message) error {
		meta := ParseMeta(msg.Body)
		content := e.Implement(ctx, a, meta.Project, msg.Body, msg.Title)
		if meta.Workdir != "" {
			if _, err := report.WriteArtifact(meta.Workdir, "20-worker-impl.diff", content); err != nil {
				slog.Warn("write impl artifact", "err", err)
			}
		}
		if err := e.deliver(ctx, a.WorkerID, a.LeadID, "実装結果: "+msg.Title, meta.Wrap(content), mailbox.KindImplResult); err != nil {
			return fmt.Errorf("deliver impl_result: %w", err)
		}
		return nil
	})
}

// Implement prepares the team worktree, runs the coder there and returns its diff.
// Failures come back as "(worker failed: ...)" text, never as errors.
func (e *Env) Implement(ctx context.Context, a org.Assignment, project, plan, title string) string {
	branch := a.TeamBranch()
	wt, err := git.WorktreeDir(e.RepoRoot, a.LeadID)
	if err != nil {
		return fmt.Sprintf("(worker failed: %v)", err)
	}
	if e.Repo != nil {
		if err := e.prepareWorktree(ctx, wt, branch); err != nil {
			slog.Error("worktree setup failed", "worktree", wt, "err", err)
			return fmt.Sprintf("(worker failed: %v)", err)
		}
	} else if err := os.MkdirAll(wt, 0o755); err != nil {
		return fmt.Sprintf("(worker failed: %v)", err)
	}
	guard := sandbox.WriteGuard{Dirs: []string{git.WorktreesDir(e.RepoRoot)}}
	if !guard.AllowWrite(wt) {
		return fmt.Sprintf("(worker failed: %s is outside the worktree area)", wt)
	}

	prompt := WorkerPrompt(memory.Compact(plan, "worker_plan", memory.DefaultMaxChars), project, branch)
	out, err := e.coder().Code(ctx, wt, prompt, e.model())
	if err != nil {
		slog.Error("coder failed", "worktree", wt, "err", err)
		return fmt.Sprintf("(worker failed: %v)", err)
	}
	content := strings.TrimSpace(out)
	if content == "" {
		if d, err := git.Diff(ctx, wt); err == nil {
			content = strings.TrimSpace(d)
		}
	}
	if e.Repo != nil {
		if _, err := e.Repo.CommitAll(ctx, wt, "usagi: "+title); err != nil {
			slog.Warn("worktree commit failed", "worktree", wt, "err", err)
		}
	}
	return content
}

func (e *Env) prepareWorktree(ctx context.Context, wt, branch string) error {
	if err := e.Repo.EnsureRepo(ctx); err != nil {
		return err
	}
	if err := e.Repo.EnsureInitialCommit(ctx); err != nil {
		return err
	}
	return e.Repo.WorktreeAdd(ctx, wt, branch)
}
