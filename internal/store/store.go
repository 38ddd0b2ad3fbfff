package store

import (
	"context"
	"errors"

	"github.com/seantiz/daskpool/internal/model"
)

// ErrInvalidTransition is returned when a worker status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// WorkerStats holds aggregate worker statistics.
type WorkerStats struct {
	Total          int            `json:"total"`
	CountByStatus  map[string]int `json:"count_by_status"`
	CountByRuntime map[string]int `json:"count_by_runtime"`
	AvgDurationMS  float64        `json:"avg_duration_ms"`
}

// Outcome is the final state recorded for a worker that stopped running.
type Outcome struct {
	Status     string
	ExitCode   *int
	Error      string
	DurationMS int
}

// Store defines the persistence operations for workers.
type Store interface {
	CreateWorker(ctx context.Context, w *model.Worker) error
	GetWorker(ctx context.Context, id string) (*model.Worker, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	UpdateWorkerStatus(ctx context.Context, id, status string) error
	MarkRunning(ctx context.Context, id, ipAddress string) error
	FinishWorker(ctx context.Context, id string, o Outcome) error
	GetWorkerStats(ctx context.Context) (*WorkerStats, error)
	Close() error
}
