package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestPaths(t *testing.T) {
	if got, want := RepoDir("/r"), filepath.Join("/r", ".usagi", "repo"); got != want {
		t.Errorf("RepoDir = %q, want %q", got, want)
	}
	got, err := WorktreeDir("/r", "dev_impl_lead")
	if err != nil {
		t.Fatalf("WorktreeDir: %v", err)
	}
	if want := filepath.Join("/r", ".usagi", "worktrees", "team-dev_impl_lead"); got != want {
		t.Errorf("WorktreeDir = %q, want %q", got, want)
	}
	if _, err := WorktreeDir("/r", " "); err == nil {
		t.Error("expected error for empty lead")
	}
}

func TestDiff_emptyPath(t *testing.T) {
	out, err := Diff(context.Background(), "")
	if err != nil || out != "" {
		t.Errorf("Diff empty path = %q, %v", out, err)
	}
}

func TestWorktreeRemove_missing(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	r := Open(t.TempDir())
	if err := r.EnsureRepo(ctx); err != nil {
		t.Fatalf("EnsureRepo: %v", err)
	}
	if err := r.WorktreeRemove(ctx, filepath.Join(t.TempDir(), "nonexistent")); err != nil {
		t.Errorf("WorktreeRemove missing: %v", err)
	}
}

func TestWorktreeMergeFlow(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	root := t.TempDir()
	r := Open(root)
	if err := r.EnsureRepo(ctx); err != nil {
		t.Fatalf("EnsureRepo: %v", err)
	}
	// idempotent
	if err := r.EnsureRepo(ctx); err != nil {
		t.Fatalf("EnsureRepo again: %v", err)
	}
	if err := r.EnsureInitialCommit(ctx); err != nil {
		t.Fatalf("EnsureInitialCommit: %v", err)
	}
	wt, _ := WorktreeDir(root, "lead1")
	if err := r.WorktreeAdd(ctx, wt, "team-lead1"); err != nil {
		t.Fatalf("WorktreeAdd: %v", err)
	}
	if !r.BranchExists(ctx, "team-lead1") {
		t.Fatal("branch should exist")
	}
	if err := r.WorktreeAdd(ctx, wt, "team-lead1"); err != nil {
		t.Fatalf("WorktreeAdd reuse: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wt, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err := r.CommitAll(ctx, wt, "worker: readme")
	if err != nil || !ok {
		t.Fatalf("CommitAll = %v, %v", ok, err)
	}
	if ok, err := r.CommitAll(ctx, wt, "nothing"); err != nil || ok {
		t.Fatalf("CommitAll clean = %v, %v", ok, err)
	}
	if err := os.WriteFile(filepath.Join(wt, "README.md"), []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Diff(ctx, wt)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !strings.Contains(d, "+world") {
		t.Errorf("diff = %q", d)
	}
	if _, err := r.CommitAll(ctx, wt, "worker: world"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if err := r.WorktreeRemove(ctx, wt); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}
	if err := r.MergeToMainAndDeleteBranch(ctx, "team-lead1"); err != nil {
		t.Fatalf("MergeToMainAndDeleteBranch: %v", err)
	}
	if r.BranchExists(ctx, "team-lead1") {
		t.Fatal("branch should be deleted")
	}
	data, err := os.ReadFile(filepath.Join(r.Dir, "README.md"))
	if err != nil || !strings.Contains(string(data), "world") {
		t.Fatalf("main README = %q, %v", data, err)
	}
	// merging a deleted branch fails without side effects
	if err := r.MergeToMainAndDeleteBranch(ctx, "team-lead1"); err == nil {
		t.Fatal("expected error merging deleted branch")
	}
}
