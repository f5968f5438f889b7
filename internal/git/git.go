// Package git drives the local repository and the per-team worktrees workers edit.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/org"
)

// MainBranch is the integration branch team branches merge into.
const MainBranch = "main"

// RepoDir returns <repoRoot>/.usagi/repo.
func RepoDir(repoRoot string) string {
	return filepath.Join(config.StateDir(repoRoot), "repo")
}

// WorktreesDir returns <repoRoot>/.usagi/worktrees, the only place workers write.
func WorktreesDir(repoRoot string) string {
	return filepath.Join(config.StateDir(repoRoot), "worktrees")
}

// WorktreeDir returns <repoRoot>/.usagi/worktrees/team-<leadID>.
func WorktreeDir(repoRoot, leadID string) (string, error) {
	branch, err := org.TeamBranch(leadID)
	if err != nil {
		return "", err
	}
	return filepath.Join(WorktreesDir(repoRoot), branch), nil
}

// Repo is a local git repository at Dir.
type Repo struct {
	Dir string
}

// Open returns the repo rooted at <repoRoot>/.usagi/repo.
func Open(repoRoot string) *Repo {
	return &Repo{Dir: RepoDir(repoRoot)}
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return run(ctx, r.Dir, args...)
}

// EnsureRepo creates the directory and runs git init -b main when no repository exists.
func (r *Repo) EnsureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.Dir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return err
	}
	_, err := r.run(ctx, "init", "-b", MainBranch)
	return err
}

// EnsureUser sets a local identity when none is configured.
func (r *Repo) EnsureUser(ctx context.Context) error {
	if _, err := r.run(ctx, "config", "user.email"); err != nil {
		if _, err := r.run(ctx, "config", "user.email", "usagi@example.invalid"); err != nil {
			return err
		}
	}
	if _, err := r.run(ctx, "config", "user.name"); err != nil {
		if _, err := r.run(ctx, "config", "user.name", "usagi"); err != nil {
			return err
		}
	}
	return nil
}

// EnsureInitialCommit guarantees HEAD exists so branches can be created and merged.
func (r *Repo) EnsureInitialCommit(ctx context.Context) error {
	if err := r.EnsureUser(ctx); err != nil {
		return err
	}
	if _, err := r.run(ctx, "rev-parse", "--verify", "HEAD"); err == nil {
		return nil
	}
	_, err := r.run(ctx, "commit", "--allow-empty", "-m", "init")
	return err
}

// BranchExists reports whether refs/heads/<branch> exists.
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// WorktreeAdd checks out branch at path, creating the branch from main when missing.
// An existing path is reused.
func (r *Repo) WorktreeAdd(ctx context.Context, path, branch string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if !r.BranchExists(ctx, branch) {
		if _, err := r.run(ctx, "branch", branch, MainBranch); err != nil {
			return err
		}
	}
	_, err := r.run(ctx, "worktree", "add", path, branch)
	return err
}

// WorktreeRemove removes the worktree at path. A missing path is a no-op.
func (r *Repo) WorktreeRemove(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		_, _ = r.run(ctx, "worktree", "prune")
		return nil
	}
	_, err := r.run(ctx, "worktree", "remove", "--force", path)
	return err
}

// MergeToMainAndDeleteBranch merges branch into main and deletes it.
func (r *Repo) MergeToMainAndDeleteBranch(ctx context.Context, branch string) error {
	if err := r.EnsureUser(ctx); err != nil {
		return err
	}
	if _, err := r.run(ctx, "checkout", MainBranch); err != nil {
		return err
	}
	if _, err := r.run(ctx, "merge", "--no-edit", branch); err != nil {
		_, _ = r.run(ctx, "merge", "--abort")
		return err
	}
	_, err := r.run(ctx, "branch", "-D", branch)
	return err
}

// CommitAll stages everything in dir and commits it. It returns false when there was nothing to commit.
func (r *Repo) CommitAll(ctx context.Context, dir, message string) (bool, error) {
	st, err := run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if st == "" {
		return false, nil
	}
	if _, err := run(ctx, dir, "add", "-A"); err != nil {
		return false, err
	}
	if _, err := run(ctx, dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Diff returns git diff for the working tree at dir.
func Diff(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, "git", "diff")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}
