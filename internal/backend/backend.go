package backend

import "context"

// Backend executes worker code for one or more runtimes.
type Backend interface {
	// Run executes a worker and blocks until it exits. The context carries
	// the worker's deadline and stop signal; when it ends the backend stops
	// the worker and returns the partial result along with ctx.Err().
	Run(ctx context.Context, spec WorkerSpec) (WorkerResult, error)

	// Capabilities reports what runtimes this backend serves.
	Capabilities() Capabilities
}

// WorkerSpec describes a worker to be executed by a backend.
type WorkerSpec struct {
	ID       string  `json:"id"`
	Runtime  string  `json:"runtime"`
	Code     string  `json:"code"`
	CPU      float64 `json:"cpu"`
	MemoryGB float64 `json:"memory"`
	GPU      int     `json:"nvidia_gpu"`

	// Env holds KEY=VALUE entries added to the worker environment.
	Env []string `json:"-"`

	// OnStart is called once the worker process is up.
	OnStart func() `json:"-"`

	// LogWriter, when set, receives the worker's output one line at a time.
	LogWriter func(line string) `json:"-"`
}

// WorkerResult holds the outcome of a worker run.
type WorkerResult struct {
	ExitCode   int    `json:"exit_code"`
	Output     []byte `json:"output"`
	Error      string `json:"error"`
	DurationMS int    `json:"duration_ms"`
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Name              string   `json:"name"`
	SupportedRuntimes []string `json:"supported_runtimes"`
	Command           string   `json:"command"`
}
