// Command daskpool-api serves the worker-management API and runs launched
// workers as local processes.
package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/daskpool/internal/api"
	"github.com/seantiz/daskpool/internal/backend"
	"github.com/seantiz/daskpool/internal/backend/process"
	"github.com/seantiz/daskpool/internal/config"
	"github.com/seantiz/daskpool/internal/engine"
	"github.com/seantiz/daskpool/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("daskpool-api: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"ip_address", cfg.IPAddress,
		"master_ip", cfg.MasterIP,
		"max_workers", cfg.MaxWorkers,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	for _, rt := range process.SupportedRuntimes {
		b, err := process.New(rt, logger)
		if err != nil {
			log.Fatalf("create %s backend: %v", rt, err)
		}
		if err := b.Verify(); err != nil {
			logger.Warn("runtime unavailable", "runtime", rt, "error", err)
			continue
		}
		reg.Register(rt, b)
	}

	eng := engine.NewEngine(db, reg, engine.Config{
		IPAddress:      cfg.IPAddress,
		MasterIP:       cfg.MasterIP,
		MaxWorkers:     cfg.MaxWorkers,
		WorkerTimeoutS: cfg.WorkerTimeoutS,
	}, logger)

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger)

	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
