package await

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/seantiz/daskpool/internal/model"
	"github.com/seantiz/daskpool/internal/remote"
)

const (
	// DefaultPollInterval is the delay between two listing snapshots.
	DefaultPollInterval = 5 * time.Second

	// DefaultTimeoutS is the deadline callers use when they have no better one.
	DefaultTimeoutS = 60
)

var (
	// ErrDuplicateID is returned when a request names the same worker twice.
	ErrDuplicateID = errors.New("duplicate worker id")

	// ErrInvalidTimeout is returned for a negative timeout.
	ErrInvalidTimeout = errors.New("timeout must not be negative")
)

// Request names the workers to await and the state to wait for.
type Request struct {
	IDs []string

	// WaitForCompletion selects the success criterion: true waits for the
	// workers to exit successfully, false waits for them to be running with
	// a published address.
	WaitForCompletion bool

	// TimeoutS is the deadline in seconds. Zero waits until every worker
	// is resolved.
	TimeoutS int
}

func (r Request) validate() error {
	if r.TimeoutS < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, r.TimeoutS)
	}
	seen := make(map[string]bool, len(r.IDs))
	for _, id := range r.IDs {
		if seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = true
	}
	return nil
}

// Result partitions the requested workers. Every requested ID appears in
// exactly one of the two lists.
type Result struct {
	Succeeded []model.Worker `json:"workers"`
	Failed    []model.Worker `json:"failures"`
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Awaiter polls a worker listing until a set of workers is resolved.
type Awaiter struct {
	lister       remote.Lister
	logger       *slog.Logger
	pollInterval time.Duration
	strict       bool
	sleep        SleepFunc
}

// Option configures an Awaiter.
type Option func(*Awaiter)

// WithPollInterval overrides DefaultPollInterval. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(a *Awaiter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for per-round and summary records.
func WithLogger(l *slog.Logger) Option {
	return func(a *Awaiter) { a.logger = l }
}

// WithStrictCadence makes each round stop at the first worker that is listed
// but not yet resolved, deferring the rest of the round. Final outcomes are
// the same; only the number of rounds needed to reach them can grow.
func WithStrictCadence() Option {
	return func(a *Awaiter) { a.strict = true }
}

// WithSleeper replaces the function used to wait between rounds.
func WithSleeper(fn SleepFunc) Option {
	return func(a *Awaiter) { a.sleep = fn }
}

// New creates an Awaiter over the given listing.
func New(l remote.Lister, opts ...Option) *Awaiter {
	a := &Awaiter{
		lister:       l,
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		pollInterval: DefaultPollInterval,
		sleep:        sleepContext,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// PollInterval reports the delay between rounds.
func (a *Awaiter) PollInterval() time.Duration {
	return a.pollInterval
}

// Await polls until every worker in req is resolved or the deadline passes.
//
// Elapsed time advances by one poll interval per round, so with a timeout of
// T seconds the listing is consulted at 0, interval, 2*interval, ... up to and
// including T, then once more to capture the last state of anything still
// pending. A listing error aborts the whole call.
func (a *Awaiter) Await(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if len(req.IDs) == 0 {
		return Result{}, nil
	}

	start := time.Now()
	timeout := time.Duration(req.TimeoutS) * time.Second
	state := newPollState(req.IDs)

	var elapsed time.Duration
	for round := 1; req.TimeoutS == 0 || elapsed <= timeout; round++ {
		snapshot, err := a.snapshot(ctx)
		if err != nil {
			return Result{}, err
		}
		state = state.advance(snapshot, req.WaitForCompletion, a.strict)
		pollsTotal.Inc()

		a.logger.Debug("await round",
			"round", round,
			"elapsed_s", elapsed.Seconds(),
			"pending", len(state.pending),
			"succeeded", len(state.succeeded),
			"failed", len(state.failed),
		)

		if state.done() {
			a.record(state, 0, start)
			return state.result(), nil
		}

		if err := a.sleep(ctx, a.pollInterval); err != nil {
			return Result{}, fmt.Errorf("await workers: %w", err)
		}
		elapsed += a.pollInterval
	}

	snapshot, err := a.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	timedOut := len(state.pending)
	a.logger.Warn("await deadline exceeded",
		"timeout_s", req.TimeoutS,
		"unresolved", state.pending,
	)
	state = state.fold(snapshot)
	a.record(state, timedOut, start)
	return state.result(), nil
}

func (a *Awaiter) snapshot(ctx context.Context) (map[string]model.Worker, error) {
	workers, err := a.lister.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return index(workers), nil
}

// record emits the summary log line and outcome metrics. timedOut is the
// number of failures caused by the deadline rather than by worker status.
func (a *Awaiter) record(state pollState, timedOut int, start time.Time) {
	awaitDuration.Observe(time.Since(start).Seconds())
	workersTotal.WithLabelValues(outcomeSucceededLabel).Add(float64(len(state.succeeded)))
	workersTotal.WithLabelValues(outcomeFailedLabel).Add(float64(len(state.failed) - timedOut))
	workersTotal.WithLabelValues(outcomeTimedOutLabel).Add(float64(timedOut))

	a.logger.Info("await finished",
		"succeeded", len(state.succeeded),
		"failed", len(state.failed),
		"timed_out", timedOut,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// sleepContext waits for d, returning early with ctx.Err() if ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
