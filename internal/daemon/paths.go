package daemon

import (
	"path/filepath"

	"github.com/ankittk/usagi/internal/config"
)

func pidPath(root string) string {
	return filepath.Join(config.StateDir(root), "daemon.pid")
}

func lockPath(root string) string {
	return filepath.Join(config.StateDir(root), "daemon.lock")
}

func addrPath(root string) string {
	return filepath.Join(config.StateDir(root), "daemon.addr")
}

// LogPath returns <root>/.usagi/logs/usagi.log.
func LogPath(root string) string {
	return filepath.Join(config.LogsDir(root), "usagi.log")
}
