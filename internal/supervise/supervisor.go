package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

type Options struct {
	// RestartAttempts caps how many times a crashed process is relaunched
	// before it is marked Failed for good.
	RestartAttempts  int
	RestartDelay     time.Duration
	WarmupInterval   time.Duration
	PollInterval     time.Duration
	TermGraceTimeout time.Duration
	KillWaitTimeout  time.Duration
	Logger           *slog.Logger
}

// Supervisor owns the managed processes: it launches them, watches their
// liveness with a cooperative poll loop, restarts crashes within the budget
// and tears the whole process trees down on shutdown.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	procs    []*ManagedProcess
	stopping bool
}

func New(opts Options) *Supervisor {
	if opts.RestartAttempts <= 0 {
		opts.RestartAttempts = 3
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = 2 * time.Second
	}
	if opts.WarmupInterval <= 0 {
		opts.WarmupInterval = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.TermGraceTimeout <= 0 {
		opts.TermGraceTimeout = 5 * time.Second
	}
	if opts.KillWaitTimeout <= 0 {
		opts.KillWaitTimeout = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Start preflight-checks the spec, launches the child, then waits out the
// warm-up interval and polls once: a process that has already died is
// reported as an early exit together with its captured output.
func (s *Supervisor) Start(spec Spec) (*ManagedProcess, error) {
	for _, port := range spec.Ports {
		if err := probePort(port); err != nil {
			return nil, fmt.Errorf("%w: port %d for %s: %v", ErrPortUnavailable, port, spec.Name, err)
		}
	}

	p := newManagedProcess(spec)
	if err := p.launch(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()

	time.Sleep(s.opts.WarmupInterval)
	if p.exited() {
		p.setState(StateFailed)
		return nil, fmt.Errorf("%w: %s exited with code %d; output: %s",
			ErrEarlyExit, spec.Name, p.lastExitCode(), p.OutputTail())
	}

	s.logger.Info("process started", "name", spec.Name, "pid", p.PID())
	return p, nil
}

// probePort verifies a listening port is free by binding and releasing it.
func probePort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return ln.Close()
}

// Monitor polls liveness until ctx is cancelled. A cooperative poll is used
// rather than blocking waits because several independently-owned processes
// are tracked at once.
func (s *Supervisor) Monitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range s.snapshot() {
				if p.State() == StateExited {
					s.handleExit(ctx, p)
				}
			}
		}
	}
}

func (s *Supervisor) handleExit(ctx context.Context, p *ManagedProcess) {
	s.logger.Warn("process exited unexpectedly",
		"name", p.Name(), "code", p.lastExitCode(), "restarts", p.Restarts(), "output", p.OutputTail())

	if p.Restarts() >= s.opts.RestartAttempts {
		p.setState(StateFailed)
		s.logger.Error("restart budget exhausted, giving up", "name", p.Name(), "attempts", p.Restarts())
		return
	}

	attempt := p.bumpRestarts()
	p.setState(StateRestarting)
	s.logger.Info("restarting process", "name", p.Name(), "attempt", attempt, "delay", s.opts.RestartDelay)

	// The delay and relaunch run off the monitor goroutine so one crashing
	// process never stalls liveness checks for its siblings.
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.RestartDelay):
		}
		if err := s.relaunch(p); err != nil {
			s.logger.Error("relaunch failed", "name", p.Name(), "err", err)
			// Leave the process in the exited pool; the next poll either
			// retries or exhausts the budget.
			p.setState(StateExited)
		}
	}()
}

// relaunch restarts p unless shutdown has begun. The launch runs under the
// supervisor lock so Shutdown either observes the new pid or prevents the
// launch entirely; a pending restart can never slip a child past teardown.
func (s *Supervisor) relaunch(p *ManagedProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil
	}
	return p.launch()
}

// Shutdown terminates every managed process tree, graceful then forceful.
// Cleanup is best-effort and exhaustive: one failure never prevents the
// remaining processes from being torn down.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	s.stopping = true
	procs := append([]*ManagedProcess(nil), s.procs...)
	s.mu.Unlock()

	var errs []error
	for _, p := range procs {
		if p.PID() == 0 {
			continue
		}
		s.logger.Info("stopping process tree", "name", p.Name(), "pid", p.PID())
		if err := killTree(p, s.opts.TermGraceTimeout, s.opts.KillWaitTimeout); err != nil {
			s.logger.Error("cleanup failed", "name", p.Name(), "err", err)
			errs = append(errs, err)
		}
		p.setState(StateNotStarted)
	}
	return errors.Join(errs...)
}

// Run monitors until ctx is cancelled (typically by SIGINT/SIGTERM), then
// tears everything down. This is the only path that stops monitoring.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Monitor(ctx)
	return s.Shutdown()
}

func (s *Supervisor) Processes() []*ManagedProcess {
	return s.snapshot()
}

func (s *Supervisor) snapshot() []*ManagedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ManagedProcess, len(s.procs))
	copy(out, s.procs)
	return out
}
