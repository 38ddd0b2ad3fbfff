package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "daskpool.db"
	defaultAPIURL         = "http://127.0.0.1:8080"
	defaultIPAddress      = "127.0.0.1"
	defaultReadonlyPort   = 8100
	defaultSchedulerBin   = "dask-scheduler"
	defaultWorkerBin      = "dask-worker"
	defaultBootstrapBin   = "daskpool-worker"
	defaultAwaitTimeoutS  = 60
	defaultMaxWorkers     = 16
	defaultWorkerTimeoutS = 0

	envListenAddr     = "DASKPOOL_LISTEN_ADDR"
	envDBPath         = "DASKPOOL_DB_PATH"
	envLogLevel       = "DASKPOOL_LOG_LEVEL"
	envAPIURL         = "DASKPOOL_API_URL"
	envIPAddress      = "DASKPOOL_IP_ADDRESS"
	envReadonlyPort   = "DASKPOOL_READONLY_PORT"
	envSchedulerBin   = "DASKPOOL_SCHEDULER_BIN"
	envWorkerBin      = "DASKPOOL_WORKER_BIN"
	envBootstrapBin   = "DASKPOOL_BOOTSTRAP_BIN"
	envSchedulerPort  = "DASKPOOL_SCHEDULER_PORT"
	envStartupTimeout = "DASKPOOL_STARTUP_TIMEOUT"
	envAwaitTimeoutS  = "DASKPOOL_AWAIT_TIMEOUT_S"
	envMaxWorkers     = "DASKPOOL_MAX_WORKERS"
	envWorkerTimeoutS = "DASKPOOL_WORKER_TIMEOUT_S"
)

// DefaultSchedulerPort is the Dask scheduler port when none is configured.
const DefaultSchedulerPort = 2323

// EnvMasterIP is injected by the worker runtime into every launched worker.
// It holds the host address of the process that launched the worker.
const EnvMasterIP = "DASKPOOL_MASTER_IP"

// EnvWorkerID is injected by the worker runtime into every launched worker.
const EnvWorkerID = "DASKPOOL_WORKER_ID"

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// APIURL is the base URL of the worker-management API.
	APIURL string

	// IPAddress is this host's address as seen by launched workers.
	IPAddress string

	// ReadonlyPort is the local port the scheduler dashboard binds to.
	ReadonlyPort int

	// MasterIP is the scheduler host. The worker runtime injects it into
	// launched workers, and the worker bootstrap reads it back. Defaults to
	// IPAddress.
	MasterIP string

	// WorkerID is set inside a launched worker.
	WorkerID string

	// SchedulerPort is the port the scheduler binds and workers dial.
	SchedulerPort int
	SchedulerBin  string
	WorkerBin     string
	BootstrapBin  string

	// StartupTimeout bounds the scheduler readiness wait. Zero waits forever.
	StartupTimeout time.Duration

	AwaitTimeoutS  int
	MaxWorkers     int
	WorkerTimeoutS int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		APIURL:         defaultAPIURL,
		IPAddress:      defaultIPAddress,
		ReadonlyPort:   defaultReadonlyPort,
		SchedulerPort:  DefaultSchedulerPort,
		SchedulerBin:   defaultSchedulerBin,
		WorkerBin:      defaultWorkerBin,
		BootstrapBin:   defaultBootstrapBin,
		AwaitTimeoutS:  defaultAwaitTimeoutS,
		MaxWorkers:     defaultMaxWorkers,
		WorkerTimeoutS: defaultWorkerTimeoutS,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envAPIURL); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(envIPAddress); v != "" {
		cfg.IPAddress = v
	}
	if v := os.Getenv(EnvMasterIP); v != "" {
		cfg.MasterIP = v
	}
	cfg.WorkerID = os.Getenv(EnvWorkerID)
	if v := os.Getenv(envSchedulerBin); v != "" {
		cfg.SchedulerBin = v
	}
	if v := os.Getenv(envWorkerBin); v != "" {
		cfg.WorkerBin = v
	}
	if v := os.Getenv(envBootstrapBin); v != "" {
		cfg.BootstrapBin = v
	}
	if v := os.Getenv(envStartupTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.StartupTimeout = d
		}
	}
	if cfg.MasterIP == "" {
		cfg.MasterIP = cfg.IPAddress
	}
	cfg.SchedulerPort = parsePositiveInt(os.Getenv(envSchedulerPort), cfg.SchedulerPort)
	cfg.ReadonlyPort = parsePositiveInt(os.Getenv(envReadonlyPort), cfg.ReadonlyPort)
	cfg.AwaitTimeoutS = parseNonNegativeInt(os.Getenv(envAwaitTimeoutS), cfg.AwaitTimeoutS)
	cfg.MaxWorkers = parsePositiveInt(os.Getenv(envMaxWorkers), cfg.MaxWorkers)
	cfg.WorkerTimeoutS = parseNonNegativeInt(os.Getenv(envWorkerTimeoutS), cfg.WorkerTimeoutS)

	return cfg
}

func parsePositiveInt(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return fallback
}

func parseNonNegativeInt(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
