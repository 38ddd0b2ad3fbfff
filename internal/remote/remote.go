package remote

import (
	"context"

	"github.com/seantiz/daskpool/internal/model"
)

// Lister fetches a full snapshot of worker descriptors. The API offers no
// filtering, so callers select the workers they care about client-side.
type Lister interface {
	ListWorkers(ctx context.Context) ([]model.Worker, error)
}

// Launcher starts new workers.
type Launcher interface {
	// LaunchWorkers requests req.N workers and returns one result per slot.
	// A slot that could not be launched carries an error payload instead of
	// an ID; the call itself only fails when the request could not be made.
	LaunchWorkers(ctx context.Context, req LaunchRequest) ([]model.LaunchResult, error)
}

// Client is the full worker-management capability set.
type Client interface {
	Lister
	Launcher

	// StopWorkers stops the given workers. Workers already in a terminal
	// state are left untouched.
	StopWorkers(ctx context.Context, ids ...string) error
}

// LaunchRequest describes a batch of identical workers.
type LaunchRequest struct {
	N        int     `json:"n"`
	CPU      float64 `json:"cpu"`
	MemoryGB float64 `json:"memory"`
	GPU      int     `json:"nvidia_gpu"`
	Runtime  string  `json:"runtime"`
	Code     string  `json:"code"`
}
