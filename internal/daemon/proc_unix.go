//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// detach puts the background daemon in its own session so closing the terminal does not stop it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func signalTerm(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
