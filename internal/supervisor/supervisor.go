// Package supervisor starts local helper processes (the Dask scheduler, the
// Dask worker inside a launched engine) and lets the owner stop or wait for them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultStopGrace is how long Stop waits after SIGTERM before killing.
const DefaultStopGrace = 5 * time.Second

// pipeDrainDelay bounds how long Wait keeps copying output after the process
// exits. A descendant outside the process group can hold the pipe open.
const pipeDrainDelay = time.Second

// ErrNoCommand is returned by Start for an empty argument vector.
var ErrNoCommand = errors.New("empty command")

// Process is a started child process. It leads its own process group, so
// signals reach anything it forks. Its lifetime is independent of the context
// it was started with.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error // set before done is closed
}

type options struct {
	env    []string
	dir    string
	stdout io.Writer
	stderr io.Writer
}

// Option configures Start.
type Option func(*options)

// WithEnv appends KEY=VALUE entries to the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithOutput sends stdout and stderr to w. Without it both go to the null
// device.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
		o.stderr = w
	}
}

// Start launches argv[0] with the remaining arguments and returns immediately.
func Start(argv []string, opts ...Option) (*Process, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), o.env...)
	cmd.Dir = o.dir
	cmd.Stdout = o.stdout
	cmd.Stderr = o.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = pipeDrainDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the operating-system process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits or ctx is done. It returns the
// process's exit error (nil for exit status 0).
func (p *Process) Wait(ctx context.Context) error {
	// An exit that already happened wins over a done context.
	select {
	case <-p.done:
		return p.err
	default:
	}
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitCode returns the exit code, or -1 if the process is still running or
// was terminated by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Stop sends SIGTERM to the process group and waits up to grace for the
// process to exit before killing the group. Stopping an exited process is a
// no-op.
func (p *Process) Stop(ctx context.Context, grace time.Duration) error {
	if p.Exited() {
		return nil
	}
	if err := p.signalGroup(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", p.PID(), err)
	}

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
	case <-ctx.Done():
	}

	if err := p.signalGroup(syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill pid %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

// signalGroup delivers sig to every process in the group led by p. A group
// that is already gone is not an error.
func (p *Process) signalGroup(sig syscall.Signal) error {
	err := syscall.Kill(-p.PID(), sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
