//go:build !unix

package supervise

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(_ *exec.Cmd) {}

func signalGroup(pid int, sig syscall.Signal) error {
	return signalPID(pid, sig)
}

func signalPID(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if sig == syscall.SIGKILL {
		return proc.Kill()
	}
	return proc.Signal(sig)
}
