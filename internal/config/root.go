package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// EnvRoot overrides the working root when --root is not given.
const EnvRoot = "USAGI_ROOT"

type rootKey struct{}

// WithRoot stores the usagi root path in the context.
func WithRoot(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, rootKey{}, root)
}

// RootFrom returns the usagi root path from the context, if set.
func RootFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(rootKey{})
	s, ok := v.(string)
	return s, ok
}

// MustRootFrom returns the root path from the context, or panics if not set.
func MustRootFrom(ctx context.Context) string {
	if r, ok := RootFrom(ctx); ok && r != "" {
		return r
	}
	panic("usagi root missing from context")
}

// ResolveRoot returns the working root (override, USAGI_ROOT, or the current directory).
func ResolveRoot(override string) (string, error) {
	if override != "" {
		return filepath.Abs(override)
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return filepath.Abs(env)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.New("could not determine working directory")
	}
	return wd, nil
}

// StateDir is <root>/.usagi.
func StateDir(root string) string { return filepath.Join(root, ".usagi") }

// StopPath is the sentinel file whose presence stops the daemon.
func StopPath(root string) string { return filepath.Join(StateDir(root), "STOP") }

// LogsDir holds the detailed slog output.
func LogsDir(root string) string { return filepath.Join(StateDir(root), "logs") }

// TrashDir holds consumed inputs.
func TrashDir(root string) string { return filepath.Join(StateDir(root), "trash") }
