// Package memory is the per-agent short-term memory: an append-only Markdown log at
// <root>/.usagi/memory/<agent_id>.md, read back with a size cap.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Path returns the memory file of agentID.
func Path(root, agentID string) string {
	return filepath.Join(root, ".usagi", "memory", agentID+".md")
}

// Store appends to and reads agent memories under one root.
type Store struct {
	Root string

	mu sync.Mutex
}

// New returns a Store for root.
func New(root string) *Store {
	return &Store{Root: root}
}

// Append adds an entry. The file and its directory are created on first use.
func (s *Store) Append(agentID, title, body string) error {
	p := Path(s.Root, agentID)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	block := fmt.Sprintf("\n\n---\n## [%s] %s\n\n%s\n", time.Now().Format("2006-01-02 15:04:05"), title, strings.TrimSpace(body))
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}

// Read returns the agent's memory compacted to at most maxChars characters.
// A missing or unreadable file reads as empty.
func (s *Store) Read(agentID string, maxChars int) string {
	data, err := os.ReadFile(Path(s.Root, agentID))
	if err != nil {
		return ""
	}
	return Compact(string(data), "memory_"+agentID, maxChars)
}
