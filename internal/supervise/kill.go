package supervise

import (
	"fmt"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const reapPollInterval = 50 * time.Millisecond

// descendants returns every process below pid, deepest first. Collected
// before signalling: once the parent dies its children are reparented and
// can no longer be found by walking the tree.
func descendants(pid int) []int32 {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []int32
	var walk func(p *process.Process)
	walk = func(p *process.Process) {
		children, err := p.Children()
		if err != nil {
			return
		}
		for _, child := range children {
			walk(child)
			out = append(out, child.Pid)
		}
	}
	walk(root)
	return out
}

// killTree terminates pid and all of its descendants: polite SIGTERM to the
// process group and each collected descendant, a bounded grace wait, then
// SIGKILL for anything still alive, with a second bounded wait.
func killTree(p *ManagedProcess, grace, killWait time.Duration) error {
	pid := p.PID()
	if pid == 0 {
		return nil
	}
	pids := descendants(pid)

	_ = signalGroup(pid, syscall.SIGTERM)
	for _, child := range pids {
		_ = signalPID(int(child), syscall.SIGTERM)
	}

	if waitTreeGone(p, pids, grace) {
		return nil
	}

	_ = signalGroup(pid, syscall.SIGKILL)
	for _, child := range pids {
		_ = signalPID(int(child), syscall.SIGKILL)
	}

	if waitTreeGone(p, pids, killWait) {
		return nil
	}
	return fmt.Errorf("process tree for %s (pid %d) still has survivors after SIGKILL", p.Name(), pid)
}

func waitTreeGone(p *ManagedProcess, pids []int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if treeGone(p, pids) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(reapPollInterval)
	}
}

func treeGone(p *ManagedProcess, pids []int32) bool {
	if !p.exited() {
		return false
	}
	for _, child := range pids {
		if exists, _ := process.PidExists(child); exists {
			return false
		}
	}
	return true
}
