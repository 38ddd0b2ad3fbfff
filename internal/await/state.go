package await

import (
	"slices"

	"github.com/seantiz/daskpool/internal/model"
)

// outcome is the classification of one worker in one polling round.
type outcome int

const (
	outcomeWaiting outcome = iota
	outcomeSucceeded
	outcomeFailed
)

// classify decides whether w has reached the desired state, an undesired
// terminal state, or neither yet.
func classify(w model.Worker, waitForCompletion bool) outcome {
	if model.IsFailure(w.Status) {
		return outcomeFailed
	}
	if waitForCompletion {
		if w.Status == model.StatusSucceeded {
			return outcomeSucceeded
		}
		return outcomeWaiting
	}
	switch {
	case w.Status == model.StatusSucceeded:
		// Exited already; it was supposed to stay up.
		return outcomeFailed
	case w.Status == model.StatusRunning && w.Reachable():
		return outcomeSucceeded
	}
	return outcomeWaiting
}

// pollState is the accumulator threaded through polling rounds. Each round
// produces a new state; a state is never mutated once built.
type pollState struct {
	pending   []string
	succeeded []model.Worker
	failed    []model.Worker
}

func newPollState(ids []string) pollState {
	return pollState{pending: slices.Clone(ids)}
}

func (s pollState) done() bool {
	return len(s.pending) == 0
}

// advance classifies every pending ID against snapshot. IDs absent from the
// snapshot stay pending. In strict mode the round ends at the first present
// but unresolved ID and the remaining IDs are deferred to the next round.
func (s pollState) advance(snapshot map[string]model.Worker, waitForCompletion, strict bool) pollState {
	next := pollState{
		succeeded: slices.Clone(s.succeeded),
		failed:    slices.Clone(s.failed),
	}
	for i, id := range s.pending {
		w, ok := snapshot[id]
		if !ok {
			next.pending = append(next.pending, id)
			continue
		}
		switch classify(w, waitForCompletion) {
		case outcomeSucceeded:
			next.succeeded = append(next.succeeded, w)
		case outcomeFailed:
			next.failed = append(next.failed, w)
		default:
			next.pending = append(next.pending, id)
			if strict {
				next.pending = append(next.pending, s.pending[i+1:]...)
				return next
			}
		}
	}
	return next
}

// fold moves every pending ID into failed using its descriptor from snapshot.
// An ID the listing no longer reports gets a placeholder descriptor so that
// every requested ID is accounted for.
func (s pollState) fold(snapshot map[string]model.Worker) pollState {
	next := pollState{
		succeeded: slices.Clone(s.succeeded),
		failed:    slices.Clone(s.failed),
	}
	for _, id := range s.pending {
		w, ok := snapshot[id]
		if !ok {
			w = model.Worker{ID: id, Status: model.StatusUnknown}
		}
		next.failed = append(next.failed, w)
	}
	return next
}

func (s pollState) result() Result {
	return Result{Succeeded: s.succeeded, Failed: s.failed}
}

// index builds an ID lookup over one listing snapshot.
func index(workers []model.Worker) map[string]model.Worker {
	m := make(map[string]model.Worker, len(workers))
	for _, w := range workers {
		m[w.ID] = w
	}
	return m
}
