package sandbox

import (
	"path/filepath"
)

// WriteGuard limits tool writes to a set of directories (worktrees, job workdirs).
type WriteGuard struct {
	Dirs []string
}

// AllowWrite returns true if path is one of the guard's directories or below one.
func (g WriteGuard) AllowWrite(path string) bool {
	if path == "" {
		return false
	}
	abs := normalize(path)
	for _, d := range g.Dirs {
		if d == "" {
			continue
		}
		if within(normalize(d), abs) {
			return true
		}
	}
	return false
}

func normalize(p string) string {
	clean := filepath.Clean(p)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean
	}
	return abs
}
