package cluster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/seantiz/daskpool/internal/model"
)

var (
	// ErrLaunchFailed is matched by every *LaunchError.
	ErrLaunchFailed = errors.New("worker launch failed")

	// ErrWorkersNotReady is matched by every *NotReadyError.
	ErrWorkersNotReady = errors.New("workers not ready")

	// ErrSchedulerExited is returned when the scheduler process exits before
	// its port accepts connections.
	ErrSchedulerExited = errors.New("scheduler exited before accepting connections")
)

// LaunchFailure is one launch slot that came back without a worker.
type LaunchFailure struct {
	EngineID string
	Message  string
}

func (f LaunchFailure) Error() string {
	if f.EngineID == "" {
		return f.Message
	}
	return fmt.Sprintf("engine %s: %s", f.EngineID, f.Message)
}

// LaunchError aggregates every failed slot of one launch call.
type LaunchError struct {
	Requested int
	Failures  []LaunchFailure

	merr *multierror.Error
}

func newLaunchError(requested int, failures []LaunchFailure) *LaunchError {
	var merr *multierror.Error
	for _, f := range failures {
		merr = multierror.Append(merr, f)
	}
	merr.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Sprintf("launch workers: %d of %d failed: %s", len(errs), requested, strings.Join(msgs, "; "))
	}
	return &LaunchError{Requested: requested, Failures: failures, merr: merr}
}

func (e *LaunchError) Error() string {
	return e.merr.Error()
}

// Is makes errors.Is(err, ErrLaunchFailed) true.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunchFailed
}

// Unwrap exposes the individual failures to errors.As.
func (e *LaunchError) Unwrap() error {
	return e.merr.ErrorOrNil()
}

// collectFailures splits launch results into launched workers and failures.
func collectFailures(results []model.LaunchResult) ([]model.Worker, []LaunchFailure) {
	workers := make([]model.Worker, 0, len(results))
	var failures []LaunchFailure
	for _, r := range results {
		if r.OK() {
			workers = append(workers, r.Worker)
			continue
		}
		failures = append(failures, LaunchFailure{EngineID: r.EngineID, Message: r.Message})
	}
	return workers, failures
}

// NotReadyError reports workers that did not come up. It is only returned
// when the cluster spec requires every worker.
type NotReadyError struct {
	Failed []model.Worker
	Total  int
}

func (e *NotReadyError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, w := range e.Failed {
		ids[i] = fmt.Sprintf("%s (%s)", w.ID, w.Status)
	}
	return fmt.Sprintf("%d of %d workers not ready: %s", len(e.Failed), e.Total, strings.Join(ids, ", "))
}

// Is makes errors.Is(err, ErrWorkersNotReady) true.
func (e *NotReadyError) Is(target error) bool {
	return target == ErrWorkersNotReady
}
