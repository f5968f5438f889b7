package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ankittk/usagi/internal/config"
)

// StatePath returns <root>/.usagi/watch_state.json.
func StatePath(root string) string {
	return filepath.Join(config.StateDir(root), "watch_state.json")
}

type stateFile struct {
	MtimeNS map[string]int64 `json:"mtime_ns"`
}

// StateStore keeps the per-path watermark: the newest mtime (ns) already processed.
// Watermarks only move forward.
type StateStore struct {
	path string

	mu       sync.Mutex
	mtime    map[string]int64
	inflight map[string]int64
}

// OpenState loads the watermarks at path. A missing file is an empty store; a corrupt
// one is an error.
func OpenState(path string) (*StateStore, error) {
	s := &StateStore{path: path, mtime: make(map[string]int64), inflight: make(map[string]int64)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range f.MtimeNS {
		s.mtime[k] = v
	}
	return s, nil
}

// Last returns the watermark of path, 0 when unseen.
func (s *StateStore) Last(path string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtime[key(path)]
}

// Set raises the watermark of path to n. Lower values are ignored.
func (s *StateStore) Set(path string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(path)
	if n > s.mtime[k] {
		s.mtime[k] = n
	}
}

// Claim reserves path at mtime n for one worker. It fails when n is not newer than the
// watermark or when another worker already holds the same or a newer mtime.
func (s *StateStore) Claim(path string, n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(path)
	if n <= s.mtime[k] {
		return false
	}
	if cur, ok := s.inflight[k]; ok && cur >= n {
		return false
	}
	s.inflight[k] = n
	return true
}

// Release drops the claim on path.
func (s *StateStore) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key(path))
}

// Save writes the watermarks atomically (temp file and rename).
func (s *StateStore) Save() error {
	s.mu.Lock()
	f := stateFile{MtimeNS: make(map[string]int64, len(s.mtime))}
	for k, v := range s.mtime {
		f.MtimeNS[k] = v
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".watch_state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
