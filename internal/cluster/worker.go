package cluster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/seantiz/daskpool/internal/supervisor"
)

// ErrNoMasterIP is returned by RunWorker when the scheduler host is unknown.
var ErrNoMasterIP = errors.New("scheduler host not set")

// WorkerConfig configures the in-worker bootstrap.
type WorkerConfig struct {
	// MasterIP is the scheduler host, injected by the worker runtime.
	MasterIP      string
	SchedulerPort int
	WorkerBin     string

	// Args are appended after the scheduler address.
	Args []string

	// Output receives the Dask worker's stdout and stderr. Defaults to os.Stderr.
	Output io.Writer
}

// WorkerArgs returns the Dask worker command line.
func WorkerArgs(cfg WorkerConfig) []string {
	port := cfg.SchedulerPort
	if port == 0 {
		port = DefaultSchedulerPort
	}
	argv := []string{cfg.WorkerBin, net.JoinHostPort(cfg.MasterIP, strconv.Itoa(port))}
	return append(argv, cfg.Args...)
}

// RunWorker runs the Dask worker in the foreground and returns its exit code.
// Cancelling ctx stops the worker.
func RunWorker(ctx context.Context, cfg WorkerConfig, logger *slog.Logger) (int, error) {
	if cfg.MasterIP == "" {
		return -1, ErrNoMasterIP
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	argv := WorkerArgs(cfg)
	proc, err := supervisor.Start(argv, supervisor.WithOutput(out))
	if err != nil {
		return -1, err
	}
	logger.Info("dask worker started", "pid", proc.PID(), "scheduler", argv[1])

	err = proc.Wait(ctx)
	if ctx.Err() != nil {
		if stopErr := proc.Stop(context.Background(), supervisor.DefaultStopGrace); stopErr != nil {
			logger.Error("failed to stop dask worker", "error", stopErr)
		}
		return proc.ExitCode(), ctx.Err()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return -1, err
	}
	code := proc.ExitCode()
	logger.Info("dask worker exited", "exit_code", code)
	return code, nil
}
