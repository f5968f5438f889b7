// Package roles holds the per-role inbox handlers of the boss → manager → lead → worker chain.
// Every handler drains one inbox; see drain for the shared failure policy.
package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/git"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/mailbox"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/merge"
	"github.com/ankittk/usagi/internal/notify"
	"github.com/ankittk/usagi/internal/org"
	"github.com/ankittk/usagi/internal/status"
	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/internal/vote"
)

// BoardID is the symbolic recipient of vote requests.
const BoardID = "board"

// Env is everything a role handler may touch. Repo, Merger, Ledger, Notify and Vote are optional.
type Env struct {
	Root       string
	OutputsDir string
	RepoRoot   string

	Org     *org.Organization
	Runtime config.Runtime

	LLM   llm.Backend
	Coder llm.Coder
	Repo  *git.Repo

	Merger *merge.Merger
	Status *status.Store
	Memory *memory.Store
	Ledger store.Ledger
	Notify *notify.Registry
	Vote   *vote.Engine
}

// Job identifies one processed input for HandleSpec.
type Job struct {
	ID      string
	Input   string
	Workdir string
}

func (e *Env) bossID() string {
	if e.Runtime.BossID != "" {
		return e.Runtime.BossID
	}
	return "boss"
}

func (e *Env) model() string { return e.Runtime.LLM.Model }

func (e *Env) displayName(id string) string {
	if id == BoardID {
		return "取締役会"
	}
	if e.Org != nil {
		if a, ok := e.Org.Find(id); ok {
			return a.DisplayName()
		}
	}
	return id
}

// SetStatus records state and task for id. Failures are logged.
func (e *Env) SetStatus(id, state, task string) {
	if e.Status == nil {
		return
	}
	if err := e.Status.Set(id, e.displayName(id), state, task); err != nil {
		slog.Warn("status update failed", "agent", id, "err", err)
	}
}

func (e *Env) remember(id, title, body string) {
	if e.Memory == nil {
		return
	}
	if err := e.Memory.Append(id, title, body); err != nil {
		slog.Warn("memory append failed", "agent", id, "err", err)
	}
}

func (e *Env) recall(id string, maxChars int) string {
	if e.Memory == nil {
		return ""
	}
	return e.Memory.Read(id, maxChars)
}

func (e *Env) generate(ctx context.Context, system, prompt string) (string, error) {
	if e.LLM == nil {
		return "", fmt.Errorf("no llm backend")
	}
	return e.LLM.Generate(ctx, system+"\n\n"+prompt, e.model())
}

func (e *Env) coder() llm.Coder {
	if e.Coder != nil {
		return e.Coder
	}
	return llm.NewCoder(e.LLM)
}

func (e *Env) deliver(ctx context.Context, from, to, title, body string, kind mailbox.Kind) error {
	_, err := mailbox.Deliver(ctx, e.Root, from, to, title, body, kind)
	return err
}
