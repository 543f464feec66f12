//go:build unix

package supervise

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so the whole
// group can be signalled as a unit during teardown.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(pid int, sig syscall.Signal) error {
	// Negative pid targets the process group.
	return syscall.Kill(-pid, sig)
}

func signalPID(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}
