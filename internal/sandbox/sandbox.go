// Package sandbox confines external coding tools: bubblewrap wrapping for subprocesses,
// a deny list for command lines and a write guard for worktree paths.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
)

// WrapCommand returns an *exec.Cmd running binary with args. When root is non-empty and
// bubblewrap is available on Linux, the command runs inside a minimal bwrap sandbox where
// root is read-only and only writableDir (which must sit under root) is writable. Without a
// usable writableDir the whole root is writable.
func WrapCommand(ctx context.Context, root, writableDir, binary string, args []string) *exec.Cmd {
	if root == "" || runtime.GOOS != "linux" {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	system := []string{
		"--ro-bind", "/usr", "/usr",
		"--ro-bind", "/lib", "/lib",
		"--ro-bind", "/lib64", "/lib64",
		"--ro-bind", "/etc", "/etc",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--unshare-pid",
	}
	var bwrapArgs []string
	if writableDir != "" {
		absDir, _ := filepath.Abs(writableDir)
		if absDir != "" && within(absRoot, absDir) {
			bwrapArgs = []string{"--ro-bind", absRoot, absRoot, "--bind", absDir, absDir}
		}
	}
	if bwrapArgs == nil {
		bwrapArgs = []string{"--bind", absRoot, absRoot}
	}
	bwrapArgs = append(bwrapArgs, system...)
	if writableDir != "" {
		bwrapArgs = append(bwrapArgs, "--chdir", writableDir)
	}
	bwrapArgs = append(bwrapArgs, "--", binary)
	bwrapArgs = append(bwrapArgs, args...)
	return exec.CommandContext(ctx, bwrap, bwrapArgs...)
}

// within reports whether p is dir or below it. Both must be absolute and clean.
func within(dir, p string) bool {
	return p == dir || (len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == filepath.Separator)
}
