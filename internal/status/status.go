// Package status keeps the last known state of every agent in <root>/.usagi/status.json.
// Every write is a whole-document read-modify-write; contention is human paced.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ankittk/usagi/internal/eventlog"
	"github.com/ankittk/usagi/pkg/models"
)

// Path returns <root>/.usagi/status.json.
func Path(root string) string {
	return filepath.Join(root, ".usagi", "status.json")
}

// Store reads and writes the status document.
type Store struct {
	root string

	mu     sync.Mutex
	warned bool
}

// New returns a Store for root.
func New(root string) *Store {
	return &Store{root: root}
}

// Load returns the current document. A missing file is an empty store; an empty or corrupt
// file is also an empty store, with one WARN line in the event log per Store.
func (s *Store) Load() models.SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() models.SystemStatus {
	st := models.SystemStatus{Agents: map[string]models.AgentStatus{}}
	data, err := os.ReadFile(Path(s.root))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.warn(fmt.Sprintf("read failed: %v", err))
		}
		return st
	}
	if strings.TrimSpace(string(data)) == "" {
		s.warn("empty")
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		s.warn("JSON decode error")
		return models.SystemStatus{Agents: map[string]models.AgentStatus{}}
	}
	if st.Agents == nil {
		st.Agents = map[string]models.AgentStatus{}
	}
	return st
}

func (s *Store) warn(reason string) {
	if s.warned {
		return
	}
	s.warned = true
	eventlog.Appendf(s.root, "WARN: status.json is invalid; using empty status (%s)", reason)
}

// Set records the agent's state and task and refreshes updated_at.
func (s *Store) Set(agentID, name, state, task string) error {
	if agentID == "" {
		return errors.New("status: agent id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.load()
	st.Agents[agentID] = models.AgentStatus{
		AgentID:   agentID,
		Name:      name,
		State:     state,
		Task:      task,
		UpdatedAt: time.Now().UTC(),
	}
	return s.save(st)
}

// Get returns one agent's record.
func (s *Store) Get(agentID string) (models.AgentStatus, bool) {
	st := s.Load()
	a, ok := st.Agents[agentID]
	return a, ok
}

// Sorted returns the records ordered by agent id.
func (s *Store) Sorted() []models.AgentStatus {
	st := s.Load()
	out := make([]models.AgentStatus, 0, len(st.Agents))
	for _, a := range st.Agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

func (s *Store) save(st models.SystemStatus) error {
	p := Path(s.root)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
