//go:build windows

package daemon

import (
	"os"
	"path/filepath"
)

// rootLock is an exclusively created file; a crash leaves it behind and `usagi stop` or
// deleting .usagi/daemon.lock clears it.
type rootLock struct {
	f    *os.File
	path string
}

func acquireLock(lockFile string) (*rootLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, lockedError(lockFile)
		}
		return nil, err
	}
	stampLock(f)
	return &rootLock{f: f, path: lockFile}, nil
}

func (l *rootLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = l.f.Close()
	_ = os.Remove(l.path)
	l.f = nil
}
