package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/seantiz/daskpool/internal/await"
	"github.com/seantiz/daskpool/internal/config"
	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/probe"
	"github.com/seantiz/daskpool/internal/remote"
	"github.com/seantiz/daskpool/internal/supervisor"
)

// DefaultSchedulerPort is used when a Spec leaves SchedulerPort unset.
const DefaultSchedulerPort = config.DefaultSchedulerPort

// Config holds the host-side settings of an Orchestrator.
type Config struct {
	// IPAddress is the address workers use to reach this host.
	IPAddress string

	// ReadonlyPort is the local dashboard port.
	ReadonlyPort int

	SchedulerBin string
	BootstrapBin string

	// StartupTimeout bounds the scheduler readiness wait. Zero waits forever.
	StartupTimeout time.Duration

	// AwaitTimeoutS is the deadline for launched workers to come up.
	AwaitTimeoutS int
}

// ConfigFrom extracts the orchestrator settings from the process config.
func ConfigFrom(c config.Config) Config {
	return Config{
		IPAddress:      c.IPAddress,
		ReadonlyPort:   c.ReadonlyPort,
		SchedulerBin:   c.SchedulerBin,
		BootstrapBin:   c.BootstrapBin,
		StartupTimeout: c.StartupTimeout,
		AwaitTimeoutS:  c.AwaitTimeoutS,
	}
}

// Spec describes one cluster.
type Spec struct {
	Workers  int
	CPU      float64
	MemoryGB float64
	GPU      int

	// SchedulerPort defaults to DefaultSchedulerPort.
	SchedulerPort int

	// RequireAll turns a partial start into a *NotReadyError.
	RequireAll bool
}

// Handle is a running cluster. The caller owns it and tears it down with
// Shutdown.
type Handle struct {
	Scheduler        *supervisor.Process
	Workers          []model.Worker
	SchedulerAddress string
	DashboardAddress string

	// Ready and Failed partition Workers by readiness at the end of the wait.
	Ready  []model.Worker
	Failed []model.Worker
}

// Shutdown stops the launched workers through client and then the scheduler.
func (h *Handle) Shutdown(ctx context.Context, client remote.Client) error {
	var errs []error
	if len(h.Workers) > 0 {
		ids := make([]string, len(h.Workers))
		for i, w := range h.Workers {
			ids[i] = w.ID
		}
		if err := client.StopWorkers(ctx, ids...); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if h.Scheduler != nil {
		if err := h.Scheduler.Stop(ctx, supervisor.DefaultStopGrace); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SchedulerStarter spawns the scheduler process for argv.
type SchedulerStarter func(argv []string) (*supervisor.Process, error)

// Orchestrator runs clusters against a worker-management API.
type Orchestrator struct {
	client    remote.Client
	cfg       Config
	logger    *slog.Logger
	start     SchedulerStarter
	awaiter   *await.Awaiter
	probeOpts []probe.Option
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSchedulerStarter replaces the default supervisor.Start based starter.
func WithSchedulerStarter(fn SchedulerStarter) Option {
	return func(o *Orchestrator) { o.start = fn }
}

// WithAwaiter replaces the awaiter built over the client.
func WithAwaiter(a *await.Awaiter) Option {
	return func(o *Orchestrator) { o.awaiter = a }
}

// WithProbeOptions adds options to the scheduler readiness probe.
func WithProbeOptions(opts ...probe.Option) Option {
	return func(o *Orchestrator) { o.probeOpts = append(o.probeOpts, opts...) }
}

// New creates an Orchestrator.
func New(client remote.Client, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	o := &Orchestrator{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
	o.start = func(argv []string) (*supervisor.Process, error) {
		return supervisor.Start(argv)
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.awaiter == nil {
		o.awaiter = await.New(client, await.WithLogger(logger))
	}
	return o
}

// SchedulerAddress returns the host:port workers connect to.
func (o *Orchestrator) SchedulerAddress(port int) string {
	return net.JoinHostPort(o.cfg.IPAddress, strconv.Itoa(port))
}

// DashboardAddress returns the local dashboard bind address.
func (o *Orchestrator) DashboardAddress() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(o.cfg.ReadonlyPort))
}

// SchedulerArgs returns the scheduler command line for port.
func (o *Orchestrator) SchedulerArgs(port int) []string {
	return []string{
		o.cfg.SchedulerBin,
		"--host", o.cfg.IPAddress,
		"--port", strconv.Itoa(port),
		"--dashboard-address", o.DashboardAddress(),
	}
}

// RunScheduler starts the scheduler and blocks until its port accepts TCP
// connections. The scheduler is stopped again if it never gets there.
func (o *Orchestrator) RunScheduler(ctx context.Context, port int) (*supervisor.Process, error) {
	argv := o.SchedulerArgs(port)
	addr := o.SchedulerAddress(port)

	start := time.Now()
	proc, err := o.start(argv)
	if err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	o.logger.Info("scheduler started", "pid", proc.PID(), "addr", addr)

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-probeCtx.Done():
		}
	}()

	opts := append([]probe.Option{probe.WithCeiling(o.cfg.StartupTimeout)}, o.probeOpts...)
	if err := probe.WaitForTCP(probeCtx, addr, opts...); err != nil {
		exited := proc.Exited()
		if stopErr := proc.Stop(context.Background(), supervisor.DefaultStopGrace); stopErr != nil {
			o.logger.Error("failed to stop scheduler", "pid", proc.PID(), "error", stopErr)
		}
		if exited && ctx.Err() == nil {
			return nil, fmt.Errorf("%w (exit code %d)", ErrSchedulerExited, proc.ExitCode())
		}
		return nil, fmt.Errorf("wait for scheduler: %w", err)
	}

	schedulerStartupDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("scheduler ready", "addr", addr, "duration_ms", time.Since(start).Milliseconds())
	return proc, nil
}

// WorkerBootstrap returns the shell payload each worker runs to join a
// scheduler on port. The scheduler host comes from the worker's environment.
func WorkerBootstrap(bin string, port int) string {
	return fmt.Sprintf("exec %s --scheduler-port %d", bin, port)
}

// RunWorkers launches spec.Workers workers pointed at port. Any slot without
// a worker fails the whole call with a *LaunchError.
func (o *Orchestrator) RunWorkers(ctx context.Context, spec Spec, port int) ([]model.Worker, error) {
	req := remote.LaunchRequest{
		N:        spec.Workers,
		CPU:      spec.CPU,
		MemoryGB: spec.MemoryGB,
		GPU:      spec.GPU,
		Runtime:  model.RuntimeShell,
		Code:     WorkerBootstrap(o.cfg.BootstrapBin, port),
	}
	results, err := o.client.LaunchWorkers(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("launch workers: %w", err)
	}

	workers, failures := collectFailures(results)
	if len(failures) > 0 {
		launchFailuresTotal.Add(float64(len(failures)))
		return nil, newLaunchError(spec.Workers, failures)
	}
	o.logger.Info("workers launched", "count", len(workers))
	return workers, nil
}

// RunCluster starts a scheduler, launches workers against it and waits for
// them to be running.
//
// Workers that fail to come up are reported in Handle.Failed; the call still
// succeeds unless spec.RequireAll is set, in which case the handle is
// returned together with a *NotReadyError so the caller can shut it down.
func (o *Orchestrator) RunCluster(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d", spec.Workers)
	}
	port := spec.SchedulerPort
	if port == 0 {
		port = DefaultSchedulerPort
	}

	proc, err := o.RunScheduler(ctx, port)
	if err != nil {
		clustersTotal.WithLabelValues(resultErrorLabel).Inc()
		return nil, err
	}

	workers, err := o.RunWorkers(ctx, spec, port)
	if err != nil {
		o.stopScheduler(proc)
		clustersTotal.WithLabelValues(resultErrorLabel).Inc()
		return nil, err
	}

	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	res, err := o.awaiter.Await(ctx, await.Request{
		IDs:               ids,
		WaitForCompletion: false,
		TimeoutS:          o.cfg.AwaitTimeoutS,
	})
	if err != nil {
		if stopErr := o.client.StopWorkers(context.Background(), ids...); stopErr != nil {
			o.logger.Error("failed to stop workers", "error", stopErr)
		}
		o.stopScheduler(proc)
		clustersTotal.WithLabelValues(resultErrorLabel).Inc()
		return nil, err
	}

	h := &Handle{
		Scheduler:        proc,
		Workers:          workers,
		SchedulerAddress: o.SchedulerAddress(port),
		DashboardAddress: o.DashboardAddress(),
		Ready:            res.Succeeded,
		Failed:           res.Failed,
	}

	if len(res.Failed) > 0 {
		clustersTotal.WithLabelValues(resultPartialLabel).Inc()
		o.logger.Warn("cluster partially started", "ready", len(res.Succeeded), "failed", len(res.Failed))
		if spec.RequireAll {
			return h, &NotReadyError{Failed: res.Failed, Total: len(workers)}
		}
		return h, nil
	}

	clustersTotal.WithLabelValues(resultReadyLabel).Inc()
	o.logger.Info("cluster ready", "scheduler", h.SchedulerAddress, "workers", len(workers))
	return h, nil
}

func (o *Orchestrator) stopScheduler(proc *supervisor.Process) {
	if err := proc.Stop(context.Background(), supervisor.DefaultStopGrace); err != nil {
		o.logger.Error("failed to stop scheduler", "pid", proc.PID(), "error", err)
	}
}
