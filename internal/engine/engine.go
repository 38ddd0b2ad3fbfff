package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/daskpool/internal/backend"
	"github.com/seantiz/daskpool/internal/config"
	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/remote"
	"github.com/seantiz/daskpool/internal/store"
)

// Launch rejection messages carried in error payloads.
const (
	msgCapacity = "worker capacity exhausted"
	msgRuntime  = "unsupported runtime"
)

// DefaultMaxWorkers is the capacity used when Config.MaxWorkers is unset.
const DefaultMaxWorkers = 16

// ErrInvalidRequest is returned for a malformed launch request.
var ErrInvalidRequest = errors.New("invalid launch request")

// errStopped is the cancellation cause for workers stopped on request.
var errStopped = errors.New("worker stopped")

// Compile-time check that the engine can stand in for a remote API.
var _ remote.Client = (*Engine)(nil)

// Config holds engine settings.
type Config struct {
	// IPAddress is published as a worker's address once it is running.
	IPAddress string

	// MasterIP is injected into every worker as the scheduler host.
	MasterIP string

	// MaxWorkers caps the number of workers alive at once.
	MaxWorkers int

	// WorkerTimeoutS bounds each worker's run time. Zero means no limit.
	WorkerTimeoutS int
}

// Engine launches and tracks workers.
type Engine struct {
	store    store.Store
	registry *backend.Registry
	logger   *slog.Logger
	cfg      Config
	broker   *LogBroker
	wg       sync.WaitGroup

	mu      sync.Mutex
	running map[string]*handle
}

// handle tracks one live worker goroutine.
type handle struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewEngine creates a new engine.
func NewEngine(s store.Store, reg *backend.Registry, cfg Config, logger *slog.Logger) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	return &Engine{
		store:    s,
		registry: reg,
		logger:   logger,
		cfg:      cfg,
		broker:   NewLogBroker(),
		running:  make(map[string]*handle),
	}
}

// Broker returns the broker carrying live worker output.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// ListWorkers returns every worker the engine has launched.
func (e *Engine) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	return e.store.ListWorkers(ctx)
}

// GetWorker returns one worker.
func (e *Engine) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	return e.store.GetWorker(ctx, id)
}

// Active returns the number of workers currently alive.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

// LaunchWorkers creates req.N workers. Each slot yields either the stored
// worker descriptor or an error payload when the runtime is unsupported or
// the engine is at capacity.
func (e *Engine) LaunchWorkers(ctx context.Context, req remote.LaunchRequest) ([]model.LaunchResult, error) {
	if req.N < 0 {
		return nil, fmt.Errorf("%w: n must not be negative", ErrInvalidRequest)
	}

	b, resolveErr := e.registry.Resolve(req.Runtime)

	results := make([]model.LaunchResult, 0, req.N)
	for i := 0; i < req.N; i++ {
		if resolveErr != nil {
			results = append(results, e.reject(req.Runtime, msgRuntime+": "+req.Runtime))
			continue
		}
		res, err := e.launch(ctx, b, req)
		if err != nil {
			results = append(results, e.reject(req.Runtime, err.Error()))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) reject(runtime, msg string) model.LaunchResult {
	engineID := model.NewWorkerID()
	rejectedTotal.Inc()
	e.logger.Warn("worker launch rejected", "engine_id", engineID, "runtime", runtime, "reason", msg)
	return model.LaunchResult{Message: msg, EngineID: engineID}
}

// launch stores one worker and starts its goroutine. The capacity check and
// registration happen under one lock so concurrent launches cannot overshoot.
func (e *Engine) launch(ctx context.Context, b backend.Backend, req remote.LaunchRequest) (model.LaunchResult, error) {
	w := model.Worker{
		ID:        model.NewWorkerID(),
		Status:    model.StatusScheduling,
		IPAddress: model.UnknownIPAddress,
		Runtime:   req.Runtime,
		Code:      req.Code,
		CPU:       req.CPU,
		MemoryGB:  req.MemoryGB,
		GPU:       req.GPU,
		CreatedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	if len(e.running) >= e.cfg.MaxWorkers {
		e.mu.Unlock()
		return model.LaunchResult{}, errors.New(msgCapacity)
	}
	if err := e.store.CreateWorker(ctx, &w); err != nil {
		e.mu.Unlock()
		return model.LaunchResult{}, fmt.Errorf("create worker: %w", err)
	}
	runCtx, cancel := context.WithCancelCause(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	e.running[w.ID] = h
	e.mu.Unlock()

	activeWorkers.Inc()
	wCopy := w
	e.wg.Go(func() {
		defer close(h.done)
		e.execute(runCtx, b, &wCopy)
	})

	e.logger.Info("worker launched", "worker_id", w.ID, "runtime", w.Runtime)
	return model.LaunchResult{Worker: w}, nil
}

// StopWorkers stops running or scheduling workers. Workers already in a
// terminal state are skipped; unknown IDs are reported as store.ErrNotFound.
func (e *Engine) StopWorkers(ctx context.Context, ids ...string) error {
	var errs []error
	for _, id := range ids {
		w, err := e.store.GetWorker(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", id, err))
			continue
		}
		if model.IsTerminal(w.Status) {
			continue
		}
		e.signalStop(id)
	}
	return errors.Join(errs...)
}

// StopWorker stops one worker and waits for it to reach a terminal state,
// then returns its final descriptor.
func (e *Engine) StopWorker(ctx context.Context, id string) (*model.Worker, error) {
	w, err := e.store.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	if model.IsTerminal(w.Status) {
		return w, nil
	}

	if h := e.signalStop(id); h != nil {
		select {
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetWorker(ctx, id)
}

func (e *Engine) signalStop(id string) *handle {
	e.mu.Lock()
	h, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	h.cancel(errStopped)
	e.logger.Info("worker stop requested", "worker_id", id)
	return h
}

// StopAll stops every live worker and waits for their goroutines.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for _, h := range e.running {
		h.cancel(errStopped)
	}
	e.mu.Unlock()
	e.Wait()
}

// Wait blocks until all in-flight worker goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute runs a worker to completion: scheduling→running→terminal.
func (e *Engine) execute(ctx context.Context, b backend.Backend, w *model.Worker) {
	defer e.broker.Finish(w.ID)
	defer func() {
		e.mu.Lock()
		h := e.running[w.ID]
		delete(e.running, w.ID)
		e.mu.Unlock()
		if h != nil {
			h.cancel(nil)
		}
		activeWorkers.Dec()
	}()

	runCtx := ctx
	if e.cfg.WorkerTimeoutS > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.WorkerTimeoutS)*time.Second)
		defer cancel()
	}

	start := time.Now()
	spec := backend.WorkerSpec{
		ID:       w.ID,
		Runtime:  w.Runtime,
		Code:     w.Code,
		CPU:      w.CPU,
		MemoryGB: w.MemoryGB,
		GPU:      w.GPU,
		Env: []string{
			config.EnvMasterIP + "=" + e.cfg.MasterIP,
			config.EnvWorkerID + "=" + w.ID,
		},
		LogWriter: func(line string) {
			e.broker.Publish(w.ID, line)
		},
		OnStart: func() {
			if err := e.store.MarkRunning(context.Background(), w.ID, e.cfg.IPAddress); err != nil {
				e.logger.Error("failed to mark worker running", "worker_id", w.ID, "error", err)
			}
		},
	}

	result, err := b.Run(runCtx, spec)
	out := store.Outcome{DurationMS: int(time.Since(start).Milliseconds())}
	if result.DurationMS > 0 {
		out.DurationMS = result.DurationMS
	}

	// A clean exit stands even when a stop or deadline raced with it.
	switch {
	case err == nil && result.ExitCode == 0:
		out.Status = model.StatusSucceeded
		out.ExitCode = &result.ExitCode
	case errors.Is(context.Cause(ctx), errStopped):
		out.Status = model.StatusStopped
		out.Error = errStopped.Error()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		out.Status = model.StatusTimedOut
		out.Error = fmt.Sprintf("worker timed out after %ds", e.cfg.WorkerTimeoutS)
	case err != nil:
		out.Status = model.StatusFailed
		out.Error = err.Error()
	default:
		out.Status = model.StatusFailed
		out.ExitCode = &result.ExitCode
		out.Error = result.Error
	}

	workersTotal.WithLabelValues(w.Runtime, out.Status).Inc()
	if err := e.store.FinishWorker(context.Background(), w.ID, out); err != nil {
		e.logger.Error("failed to record worker outcome", "worker_id", w.ID, "status", out.Status, "error", err)
		return
	}
	e.logger.Info("worker finished",
		"worker_id", w.ID,
		"status", out.Status,
		"duration_ms", out.DurationMS,
	)
}
