// Command daskpool-worker is the bootstrap that runs inside a launched
// worker. It connects a Dask worker to the scheduler on the host named by
// DASKPOOL_MASTER_IP and exits with the Dask worker's exit code.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/daskpool/internal/cluster"
	"github.com/seantiz/daskpool/internal/config"
)

func main() {
	cfg := config.Load()

	port := flag.Int("scheduler-port", cfg.SchedulerPort, "scheduler port on the master host")
	flag.Parse()

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code, err := cluster.RunWorker(ctx, cluster.WorkerConfig{
		MasterIP:      cfg.MasterIP,
		SchedulerPort: *port,
		WorkerBin:     cfg.WorkerBin,
		Args:          flag.Args(),
	}, logger.With("worker_id", cfg.WorkerID))
	if err != nil && code < 0 {
		log.Fatalf("daskpool-worker: %v", err)
	}
	os.Exit(code)
}
