package model

import "time"

// Worker status constants.
const (
	StatusScheduling = "scheduling"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusTimedOut   = "timedout"
	StatusStopped    = "stopped"

	// StatusUnknown is never reported by a runtime. It marks a placeholder
	// descriptor for a worker that vanished from the listing.
	StatusUnknown = "unknown"
)

// UnknownIPAddress is the address a runtime reports before a worker is reachable.
const UnknownIPAddress = "unknown"

// Runtime kinds a worker's bootstrap code can be executed with.
const (
	RuntimeShell  = "shell"
	RuntimePython = "python3"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusScheduling: {
		StatusRunning:  true,
		StatusFailed:   true,
		StatusTimedOut: true,
		StatusStopped:  true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
		StatusTimedOut:  true,
		StatusStopped:   true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further transition can occur from status.
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusStopped:
		return true
	}
	return false
}

// IsFailure reports whether status is a terminal status other than succeeded.
func IsFailure(status string) bool {
	return status == StatusFailed || status == StatusTimedOut || status == StatusStopped
}

// Worker describes a remotely launched compute engine as reported by the
// worker-management API.
type Worker struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Runtime    string     `json:"runtime,omitempty"`
	Code       string     `json:"code,omitempty"`
	CPU        float64    `json:"cpu,omitempty"`
	MemoryGB   float64    `json:"memory,omitempty"`
	GPU        int        `json:"nvidia_gpu,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RunningAt  *time.Time `json:"running_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Reachable reports whether the worker has published a network address.
func (w Worker) Reachable() bool {
	return w.IPAddress != "" && w.IPAddress != UnknownIPAddress
}

// LaunchResult is one entry of a launch response. It carries either a worker
// descriptor or, when the slot could not be launched, an error payload.
type LaunchResult struct {
	Worker

	Message  string `json:"message,omitempty"`
	EngineID string `json:"engine_id,omitempty"`
}

// OK reports whether the slot produced a worker.
func (r LaunchResult) OK() bool {
	return r.ID != ""
}
