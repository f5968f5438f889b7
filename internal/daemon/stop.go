package daemon

import (
	"errors"
	"os"
	"time"

	"github.com/ankittk/usagi/internal/config"
)

// RequestStop creates the STOP file; the control loop exits on its next round.
func RequestStop(root string) error {
	if err := os.MkdirAll(config.StateDir(root), 0o755); err != nil {
		return err
	}
	return os.WriteFile(config.StopPath(root), []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644)
}

// ClearStop removes a stale STOP file. A missing file is not an error.
func ClearStop(root string) error {
	err := os.Remove(config.StopPath(root))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// StopRequested reports whether the STOP file exists.
func StopRequested(root string) bool {
	_, err := os.Stat(config.StopPath(root))
	return err == nil
}
