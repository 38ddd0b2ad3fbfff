package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/daskpool/internal/model"

	_ "modernc.org/sqlite"
)

const createWorkersTable = `
CREATE TABLE IF NOT EXISTS workers (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    ip_address  TEXT NOT NULL DEFAULT '',
    runtime     TEXT NOT NULL,
    code        TEXT NOT NULL DEFAULT '',
    cpu         REAL NOT NULL DEFAULT 0,
    memory_gb   REAL NOT NULL DEFAULT 0,
    nvidia_gpu  INTEGER NOT NULL DEFAULT 0,
    exit_code   INTEGER,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    running_at  DATETIME,
    finished_at DATETIME
)`

const workerColumns = `id, status, ip_address, runtime, code, cpu, memory_gb,
	nvidia_gpu, exit_code, error, created_at, running_at, finished_at`

// ErrNotFound is returned when a worker is not found.
var ErrNotFound = errors.New("worker not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createWorkersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create workers table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorker(row scanner) (model.Worker, error) {
	var w model.Worker
	err := row.Scan(
		&w.ID, &w.Status, &w.IPAddress, &w.Runtime, &w.Code, &w.CPU, &w.MemoryGB,
		&w.GPU, &w.ExitCode, &w.Error, &w.CreatedAt, &w.RunningAt, &w.FinishedAt,
	)
	return w, err
}

// CreateWorker inserts a new worker record.
func (s *SQLiteStore) CreateWorker(ctx context.Context, w *model.Worker) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers (`+workerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Status, w.IPAddress, w.Runtime, w.Code, w.CPU, w.MemoryGB,
		w.GPU, w.ExitCode, w.Error, w.CreatedAt, w.RunningAt, w.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert worker: %w", err)
	}
	return nil
}

// GetWorker retrieves a worker by ID.
func (s *SQLiteStore) GetWorker(ctx context.Context, id string) (*model.Worker, error) {
	w, err := scanWorker(s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return &w, nil
}

// ListWorkers returns every worker in launch order.
func (s *SQLiteStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workerColumns+` FROM workers ORDER BY rowid ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	workers := []model.Worker{}
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return workers, nil
}

// transition checks the current status of id against to inside tx.
func transition(ctx context.Context, tx *sql.Tx, id, to string) error {
	var from string
	err := tx.QueryRowContext(ctx, "SELECT status FROM workers WHERE id = ?", id).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read worker status: %w", err)
	}
	if !model.ValidTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// update runs query after a transition check, in one transaction.
func (s *SQLiteStore) update(ctx context.Context, id, to, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, id, to); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update worker: %w", err)
	}
	return tx.Commit()
}

// UpdateWorkerStatus moves a worker to status. Entering running sets
// running_at; entering a terminal status sets finished_at.
func (s *SQLiteStore) UpdateWorkerStatus(ctx context.Context, id, status string) error {
	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		return s.update(ctx, id, status,
			"UPDATE workers SET status = ?, running_at = ? WHERE id = ?", status, now, id)
	case model.IsTerminal(status):
		return s.update(ctx, id, status,
			"UPDATE workers SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		return s.update(ctx, id, status,
			"UPDATE workers SET status = ? WHERE id = ?", status, id)
	}
}

// MarkRunning moves a scheduling worker to running and publishes its address.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id, ipAddress string) error {
	return s.update(ctx, id, model.StatusRunning,
		"UPDATE workers SET status = ?, ip_address = ?, running_at = ? WHERE id = ?",
		model.StatusRunning, ipAddress, time.Now().UTC(), id,
	)
}

// FinishWorker records a worker's terminal outcome.
func (s *SQLiteStore) FinishWorker(ctx context.Context, id string, o Outcome) error {
	if !model.IsTerminal(o.Status) {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, o.Status)
	}
	return s.update(ctx, id, o.Status,
		`UPDATE workers SET status = ?, exit_code = ?, error = ?, duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		o.Status, o.ExitCode, o.Error, o.DurationMS, time.Now().UTC(), id,
	)
}

// GetWorkerStats returns aggregate counts and the mean run duration of
// finished workers.
func (s *SQLiteStore) GetWorkerStats(ctx context.Context) (*WorkerStats, error) {
	stats := &WorkerStats{
		CountByStatus:  make(map[string]int),
		CountByRuntime: make(map[string]int),
	}

	if err := s.countBy(ctx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "runtime", stats.CountByRuntime); err != nil {
		return nil, err
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM workers WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}
	return stats, nil
}

// countBy fills into with row counts grouped by column. column is a
// trusted identifier, never user input.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM workers GROUP BY "+column,
	)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
