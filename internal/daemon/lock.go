package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrLocked means another usagi process holds the root's daemon lock.
var ErrLocked = errors.New("usagi is already running")

func lockedError(lockFile string) error {
	b, err := os.ReadFile(lockFile)
	if err != nil {
		return ErrLocked
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil && pid > 0 {
		return fmt.Errorf("%w (pid %d holds %s)", ErrLocked, pid, lockFile)
	}
	return ErrLocked
}

func stampLock(f *os.File) {
	if err := f.Truncate(0); err != nil {
		return
	}
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}
