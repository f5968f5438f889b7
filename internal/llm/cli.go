package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankittk/usagi/internal/sandbox"
)

// CLI runs an external tool such as `codex exec <prompt>` and returns its stdout.
type CLI struct {
	Command []string // argv prefix; the prompt is appended as the last argument
	// Stdin sends the prompt on stdin instead of as an argument.
	Stdin bool
	// SandboxRoot, when set, runs the tool inside bubblewrap with the root read-only.
	SandboxRoot string
}

// Name returns "cli".
func (c *CLI) Name() string { return "cli" }

// Generate runs the tool in the current directory.
func (c *CLI) Generate(ctx context.Context, prompt, model string) (string, error) {
	return c.run(ctx, "", prompt, model)
}

// Code runs the tool inside dir, which becomes the only writable path when sandboxed.
func (c *CLI) Code(ctx context.Context, dir, prompt, model string) (string, error) {
	return c.run(ctx, dir, prompt, model)
}

func (c *CLI) run(ctx context.Context, dir, prompt, model string) (string, error) {
	argv := c.Command
	if len(argv) == 0 {
		argv = []string{"codex", "exec"}
	}
	if err := sandbox.CheckCommand(argv); err != nil {
		return "", err
	}
	full := prompt
	if model != "" {
		full = fmt.Sprintf("[model=%s]\n%s", model, prompt)
	}
	args := append([]string{}, argv[1:]...)
	if !c.Stdin {
		args = append(args, full)
	}
	cmd := sandbox.WrapCommand(ctx, c.SandboxRoot, dir, argv[0], args)
	if dir != "" {
		cmd.Dir = dir
	}
	if c.Stdin {
		cmd.Stdin = strings.NewReader(full)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		tail := tailLines(stderr.String(), 50)
		slog.Error("cli backend failed", "cmd", argv[0], "dir", dir, "err", err, "stderr_tail", tail)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s: timed out: %w", argv[0], ctx.Err())
		}
		return "", fmt.Errorf("%s: %w: %s", argv[0], err, lastLine(tail))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
