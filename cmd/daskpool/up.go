package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/daskpool/internal/cluster"
	"github.com/seantiz/daskpool/internal/config"
	"github.com/seantiz/daskpool/internal/remote"
)

var (
	upWorkers    int
	upCPU        float64
	upMemory     float64
	upGPU        int
	upPort       int
	upRequireAll bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a scheduler and workers, then hold the cluster until interrupted",
	Example: `  # Three workers with a quarter CPU each
  daskpool up -n 3 --cpu 0.25 --memory 1

  # Fail unless every worker comes up
  daskpool up -n 4 --require-all`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().IntVarP(&upWorkers, "workers", "n", 1, "number of workers")
	upCmd.Flags().Float64Var(&upCPU, "cpu", 0.5, "CPU share per worker")
	upCmd.Flags().Float64Var(&upMemory, "memory", 1, "memory per worker in GB")
	upCmd.Flags().IntVar(&upGPU, "gpu", 0, "GPUs per worker")
	upCmd.Flags().IntVar(&upPort, "scheduler-port", 0, "scheduler port (default from DASKPOOL_SCHEDULER_PORT, then 2323)")
	upCmd.Flags().BoolVar(&upRequireAll, "require-all", false, "fail when any worker does not come up")
}

func runUp(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	client := newClient(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := cluster.New(client, cluster.ConfigFrom(cfg), logger)
	h, err := orch.RunCluster(ctx, cluster.Spec{
		Workers:       upWorkers,
		CPU:           upCPU,
		MemoryGB:      upMemory,
		GPU:           upGPU,
		SchedulerPort: schedulerPort(upPort, cfg),
		RequireAll:    upRequireAll,
	})
	if err != nil {
		var notReady *cluster.NotReadyError
		if errors.As(err, &notReady) && h != nil {
			shutdown(h, client)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scheduler: %s\n", h.SchedulerAddress)
	fmt.Fprintf(out, "dashboard: %s\n", h.DashboardAddress)
	fmt.Fprintf(out, "workers:   %d ready, %d failed\n", len(h.Ready), len(h.Failed))

	select {
	case <-ctx.Done():
		logger.Info("interrupted, shutting down cluster")
	case <-h.Scheduler.Done():
		logger.Warn("scheduler exited", "exit_code", h.Scheduler.ExitCode())
	}
	return shutdown(h, client)
}

// schedulerPort prefers an explicit flag value over the configured port.
func schedulerPort(flagValue int, cfg config.Config) int {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.SchedulerPort
}

func shutdown(h *cluster.Handle, client remote.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.Shutdown(ctx, client)
}
