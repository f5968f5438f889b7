package llm

import "context"

// Coder edits files in a working directory and returns a diff-like summary of its work.
type Coder interface {
	Code(ctx context.Context, dir, prompt, model string) (string, error)
}

// GeneratorCoder adapts a Backend to a Coder; the directory is ignored.
type GeneratorCoder struct {
	Backend Backend
}

// Code calls the backend with the prompt.
func (g GeneratorCoder) Code(ctx context.Context, _ string, prompt, model string) (string, error) {
	return g.Backend.Generate(ctx, prompt, model)
}

// NewCoder returns the CLI itself when b wraps one, so the tool runs inside the worktree;
// any other backend is adapted with GeneratorCoder.
func NewCoder(b Backend) Coder {
	if t, ok := b.(timed); ok {
		if c, ok := t.inner.(*CLI); ok {
			return timedCoder{cli: c, t: t}
		}
	}
	if c, ok := b.(*CLI); ok {
		return c
	}
	return GeneratorCoder{Backend: b}
}

type timedCoder struct {
	cli *CLI
	t   timed
}

func (tc timedCoder) Code(ctx context.Context, dir, prompt, model string) (string, error) {
	if tc.t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tc.t.timeout)
		defer cancel()
	}
	return tc.cli.Code(ctx, dir, prompt, model)
}
