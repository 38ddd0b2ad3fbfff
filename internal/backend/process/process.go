// Package process runs worker code as a local child process through an
// interpreter (sh or python3).
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/seantiz/daskpool/internal/backend"
	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/supervisor"
)

const (
	// BackendName is reported in Capabilities.
	BackendName = "process"

	// maxOutputBytes caps the captured output; older bytes are dropped.
	maxOutputBytes = 64 << 10

	stopGrace = 5 * time.Second
)

// interpreters maps runtimes to the argv prefix that runs inline code.
var interpreters = map[string][]string{
	model.RuntimeShell:  {"sh", "-c"},
	model.RuntimePython: {"python3", "-c"},
}

// SupportedRuntimes lists the runtimes this package can serve.
var SupportedRuntimes = []string{model.RuntimeShell, model.RuntimePython}

// Backend runs one runtime's code through its interpreter.
type Backend struct {
	runtime string
	argv    []string
	logger  *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend for runtime.
func New(runtime string, logger *slog.Logger) (*Backend, error) {
	argv, ok := interpreters[runtime]
	if !ok {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnsupportedRuntime, runtime)
	}
	return &Backend{runtime: runtime, argv: argv, logger: logger}, nil
}

// Verify checks that the interpreter is on PATH.
func (b *Backend) Verify() error {
	if _, err := exec.LookPath(b.argv[0]); err != nil {
		return fmt.Errorf("%s runtime: %w", b.runtime, err)
	}
	return nil
}

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Name:              BackendName,
		SupportedRuntimes: []string{b.runtime},
		Command:           b.argv[0],
	}
}

// Run implements backend.Backend.
func (b *Backend) Run(ctx context.Context, spec backend.WorkerSpec) (backend.WorkerResult, error) {
	start := time.Now()
	out := &tailBuffer{max: maxOutputBytes}
	var w io.Writer = out
	var lines *lineWriter
	if spec.LogWriter != nil {
		lines = &lineWriter{emit: spec.LogWriter}
		w = io.MultiWriter(out, lines)
	}

	argv := append(append([]string(nil), b.argv...), spec.Code)
	proc, err := supervisor.Start(argv, supervisor.WithEnv(spec.Env...), supervisor.WithOutput(w))
	if err != nil {
		runsTotal.WithLabelValues(b.runtime, statusFailed).Inc()
		return backend.WorkerResult{}, err
	}
	activeProcesses.Inc()
	defer activeProcesses.Dec()

	b.logger.Info("worker process started",
		"worker_id", spec.ID,
		"runtime", b.runtime,
		"pid", proc.PID(),
	)
	if spec.OnStart != nil {
		spec.OnStart()
	}

	waitErr := proc.Wait(ctx)
	if lines != nil {
		defer lines.Flush()
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(waitErr, ctxErr) {
		if err := proc.Stop(context.Background(), stopGrace); err != nil {
			b.logger.Error("failed to stop worker process", "worker_id", spec.ID, "error", err)
		}
		runsTotal.WithLabelValues(b.runtime, statusKilled).Inc()
		return b.result(proc, out, start, ctx.Err().Error()), ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		runsTotal.WithLabelValues(b.runtime, statusFailed).Inc()
		return backend.WorkerResult{}, fmt.Errorf("wait for worker %s: %w", spec.ID, waitErr)
	}

	res := b.result(proc, out, start, "")
	if res.ExitCode == 0 {
		runsTotal.WithLabelValues(b.runtime, statusCompleted).Inc()
	} else {
		res.Error = fmt.Sprintf("exit status %d", res.ExitCode)
		runsTotal.WithLabelValues(b.runtime, statusFailed).Inc()
	}
	runDuration.Observe(time.Since(start).Seconds())

	b.logger.Info("worker process exited",
		"worker_id", spec.ID,
		"exit_code", res.ExitCode,
		"duration_ms", res.DurationMS,
	)
	return res, nil
}

func (b *Backend) result(proc *supervisor.Process, out *tailBuffer, start time.Time, errMsg string) backend.WorkerResult {
	return backend.WorkerResult{
		ExitCode:   proc.ExitCode(),
		Output:     out.Bytes(),
		Error:      errMsg,
		DurationMS: int(time.Since(start).Milliseconds()),
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}

// lineWriter splits a byte stream into lines for a LogWriter callback.
type lineWriter struct {
	mu      sync.Mutex
	emit    func(string)
	partial []byte
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.emit(string(l.partial[:i]))
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

// Flush emits any trailing text that was not newline terminated.
func (l *lineWriter) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.partial) > 0 {
		l.emit(string(l.partial))
		l.partial = nil
	}
}
