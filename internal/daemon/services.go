package daemon

import (
	"fmt"
	"log/slog"
	"os/exec"
	"reflect"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/config"
	"github.com/ankittk/usagi/internal/git"
	"github.com/ankittk/usagi/internal/llm"
	"github.com/ankittk/usagi/internal/memory"
	"github.com/ankittk/usagi/internal/merge"
	"github.com/ankittk/usagi/internal/notify"
	"github.com/ankittk/usagi/internal/roles"
	"github.com/ankittk/usagi/internal/status"
	"github.com/ankittk/usagi/internal/store"
	"github.com/ankittk/usagi/internal/store/postgres"
	"github.com/ankittk/usagi/internal/store/sqlite"
	"github.com/ankittk/usagi/internal/vote"
)

const reloadTTL = 2 * time.Second

// services are the long-lived pieces shared by every Env the daemon builds. The policy
// and org chart are reloaded through the loader; the LLM backend is rebuilt only when
// its section of the policy changes.
type services struct {
	root   string
	loader *config.Loader
	ledger store.Ledger
	status *status.Store
	memory *memory.Store
	notify *notify.Registry
	repo   *git.Repo
	merger *merge.Merger

	mu      sync.Mutex
	last    *roles.Env
	llmCfg  config.LLMConfig
	backend llm.Backend
}

func newServices(root string, ledger store.Ledger, useGit bool) *services {
	s := &services{
		root:   root,
		loader: config.NewLoader(root, reloadTTL),
		ledger: ledger,
		status: status.New(root),
		memory: memory.New(root),
		notify: notify.FromEnv(),
	}
	if useGit {
		if _, err := exec.LookPath("git"); err == nil {
			s.repo = git.Open(root)
		}
	}
	s.merger = &merge.Merger{Repo: s.repo, Ledger: ledger, Root: root}
	return s
}

// env builds the Env for the current policy. On a load error the last good Env is
// returned alongside the error (nil before the first success).
func (s *services) env() (*roles.Env, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, err := s.loader.Runtime()
	if err != nil {
		return s.last, fmt.Errorf("load runtime: %w", err)
	}
	o, err := s.loader.Org()
	if err != nil {
		return s.last, fmt.Errorf("load org: %w", err)
	}
	if s.backend == nil || !reflect.DeepEqual(rt.LLM, s.llmCfg) {
		b, err := llm.New(rt.LLM, s.root)
		if err != nil {
			return s.last, fmt.Errorf("llm backend: %w", err)
		}
		s.backend, s.llmCfg = b, rt.LLM
	}

	e := &roles.Env{
		Root:       s.root,
		OutputsDir: config.Resolve(s.root, rt.Watch.OutputsDir),
		RepoRoot:   s.root,
		Org:        o,
		Runtime:    rt,
		LLM:        s.backend,
		Coder:      llm.NewCoder(s.backend),
		Repo:       s.repo,
		Merger:     s.merger,
		Status:     s.status,
		Memory:     s.memory,
		Ledger:     s.ledger,
		Notify:     s.notify,
		Vote: &vote.Engine{
			Backend:   s.backend,
			Model:     rt.LLM.Model,
			Ledger:    s.ledger,
			Root:      s.root,
			InputsDir: config.Resolve(s.root, rt.Watch.InputsDir),
			BossID:    rt.BossID,
			Voters:    rt.Vote.Voters,
		},
	}
	s.last = e
	return e, nil
}

// current is env for callers that only need the last good Env.
func (s *services) current() *roles.Env {
	e, err := s.env()
	if err != nil {
		slog.Warn("reload failed, keeping previous policy", "err", err)
	}
	return e
}

// OpenLedger opens the sqlite ledger under root or, for driver "postgres", the DSN (or DATABASE_URL).
func OpenLedger(root, driver, dsn string) (store.Ledger, error) {
	switch driver {
	case "", "sqlite":
		st, err := sqlite.Open(root)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return st, nil
	case "postgres":
		st, err := postgres.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}
