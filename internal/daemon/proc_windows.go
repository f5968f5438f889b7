//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func detach(*exec.Cmd) {}

// processExists relies on FindProcess opening a handle, which fails for exited pids on Windows.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

// signalTerm kills outright; there is no SIGTERM. The STOP file is the graceful path.
func signalTerm(proc *os.Process) error {
	return proc.Kill()
}
