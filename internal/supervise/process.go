package supervise

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// State is the lifecycle state of one managed process.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
)

var (
	ErrLaunch          = errors.New("launch failed")
	ErrPortUnavailable = errors.New("required port unavailable")
	ErrEarlyExit       = errors.New("process exited during warm-up")
)

// Spec describes how to launch one supervised child.
type Spec struct {
	Name string
	Path string
	Args []string
	// Env entries are layered over the parent environment, "KEY=VALUE".
	Env []string
	Dir string
	// Ports the child must be able to bind; checked before launch.
	Ports []int
}

// ManagedProcess is a supervised child plus its lifecycle metadata. The OS
// handle is owned exclusively by the supervisor; on restart the handle is
// replaced, never duplicated.
type ManagedProcess struct {
	spec Spec

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	pid      int
	restarts int
	exitCode int
	done     chan struct{}
	output   *tailBuffer
}

func newManagedProcess(spec Spec) *ManagedProcess {
	return &ManagedProcess{
		spec:   spec,
		state:  StateNotStarted,
		output: newTailBuffer(outputTailBytes),
	}
}

func (p *ManagedProcess) Name() string { return p.spec.Name }

func (p *ManagedProcess) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ManagedProcess) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *ManagedProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// OutputTail returns the most recent captured stdout/stderr, for surfacing
// early exits and crash loops to the operator.
func (p *ManagedProcess) OutputTail() string {
	return p.output.String()
}

// launch spawns the child in its own process group and installs a waiter
// that records the exit. Caller must hold no locks.
func (p *ManagedProcess) launch() error {
	if _, err := os.Stat(p.spec.Path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLaunch, p.spec.Path, err)
	}

	cmd := exec.Command(p.spec.Path, p.spec.Args...)
	cmd.Dir = p.spec.Dir
	cmd.Env = append(os.Environ(), p.spec.Env...)
	cmd.Stdout = p.output
	cmd.Stderr = p.output
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLaunch, p.spec.Path, err)
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.state = StateRunning
	p.done = done
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = exitCodeOf(err)
		if p.state == StateRunning {
			p.state = StateExited
		}
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

// exited reports whether the current launch has terminated.
func (p *ManagedProcess) exited() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (p *ManagedProcess) lastExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *ManagedProcess) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *ManagedProcess) bumpRestarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarts++
	return p.restarts
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
