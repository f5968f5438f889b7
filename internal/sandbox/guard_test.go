package sandbox

import (
	"path/filepath"
	"testing"
)

func TestWriteGuard(t *testing.T) {
	base := t.TempDir()
	worktrees := filepath.Join(base, ".usagi", "worktrees")
	g := WriteGuard{Dirs: []string{worktrees}}
	if !g.AllowWrite(worktrees) {
		t.Error("dir itself should be allowed")
	}
	if !g.AllowWrite(filepath.Join(worktrees, "team-dev_lead", "README.md")) {
		t.Error("path below dir should be allowed")
	}
	if g.AllowWrite(filepath.Join(base, ".usagi", "repo")) {
		t.Error("sibling dir should be denied")
	}
	if g.AllowWrite(worktrees + "-evil") {
		t.Error("prefix match without separator should be denied")
	}
	if g.AllowWrite(filepath.Join(worktrees, "..", "status.json")) {
		t.Error("escaping with .. should be denied")
	}
	if g.AllowWrite("") {
		t.Error("empty path should be denied")
	}
}

func TestWrapCommand_noRoot(t *testing.T) {
	cmd := WrapCommand(t.Context(), "", "", "echo", []string{"hi"})
	if filepath.Base(cmd.Path) != "echo" && cmd.Args[0] != "echo" {
		t.Errorf("expected plain command, got %v", cmd.Args)
	}
}
