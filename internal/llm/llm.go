// Package llm is the text-generation capability used by every role: a Backend turns a prompt
// into text. Backends are offline (deterministic), OpenAI-compatible HTTP, an external CLI,
// or a remote usagi-llm-server over gRPC.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/otel"
)

// Backend generates text for a prompt. Implementations may fail on transport errors; callers
// degrade instead of aborting.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// Terminal-token choices embedded in prompts. The offline backend recognizes them.
const (
	ChoiceReview = "判断: APPROVE / CHANGES_REQUESTED"
	ChoiceMerge  = "判断: MERGE_OK / NEED_MORE_REVIEW / ESCALATE_TO_BOSS"
	ChoiceVote   = "decision: approve|block|abstain"
)

// Func adapts a function to a Backend.
type Func func(ctx context.Context, prompt, model string) (string, error)

// Name returns "func".
func (f Func) Name() string { return "func" }

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

// Offline is a deterministic backend used for dry runs and tests. It answers every terminal
// token question optimistically so an offline run walks the happy path.
type Offline struct{}

// Name returns "offline".
func (Offline) Name() string { return "offline" }

// Generate returns "(offline: model=X, prompt_length=N)" plus the optimistic token, if any.
func (Offline) Generate(_ context.Context, prompt, model string) (string, error) {
	out := fmt.Sprintf("(offline: model=%s, prompt_length=%d)", model, len([]rune(prompt)))
	switch {
	case strings.Contains(prompt, ChoiceVote):
		out += "\ndecision: approve"
	case strings.Contains(prompt, ChoiceMerge):
		out += "\nMERGE_OK"
	case strings.Contains(prompt, ChoiceReview):
		out += "\nAPPROVE"
	}
	return out, nil
}

type timed struct {
	inner   Backend
	timeout time.Duration
}

// WithTimeout bounds each Generate call of b by d and records its duration. d <= 0 only records.
func WithTimeout(b Backend, d time.Duration) Backend {
	return timed{inner: b, timeout: d}
}

func (t timed) Name() string { return t.inner.Name() }

func (t timed) Generate(ctx context.Context, prompt, model string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := t.inner.Generate(ctx, prompt, model)
	otel.RecordLLMCall(ctx, t.inner.Name(), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.inner.Name(), err)
	}
	return out, nil
}

// New builds the backend selected by cfg, wrapped with its timeout. root is the sandbox root
// for the CLI backend.
func New(cfg config.LLMConfig, root string) (Backend, error) {
	var b Backend
	switch cfg.Backend {
	case "", "offline":
		b = Offline{}
	case "openai":
		b = &OpenAI{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}
	case "cli", "codex_cli":
		c := &CLI{Command: cfg.Command}
		if cfg.Sandbox {
			c.SandboxRoot = root
		}
		b = c
	case "grpc":
		b = &GRPC{Addr: cfg.GRPCAddr}
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
	return WithTimeout(b, cfg.Timeout), nil
}
