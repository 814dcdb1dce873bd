// Package driver implements driver submission, supervision and state
// tracking for the worker. A driver is a long-lived process launched
// from a fetched artifact; the package keeps it running, captures its
// output and reports how it ended.
package driver

import (
	"time"

	"driverd/internal/command"
)

// State is a driver lifecycle state.
type State string

const (
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateKilled    State = "killed"
	StateError     State = "error"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateKilled, StateError:
		return true
	}
	return false
}

// Callback describes where a driver's terminal-state notification is
// delivered.
type Callback struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

// Descriptor describes a driver to run.
type Descriptor struct {
	ID          string            `json:"id,omitempty"`
	Command     command.Spec      `json:"command"`
	MemoryMB    int               `json:"memoryMb,omitempty"`
	ArtifactURL string            `json:"artifactUrl"`
	Supervise   bool              `json:"supervise,omitempty"`
	Callback    *Callback         `json:"callback,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// SubmitResponse acknowledges an accepted driver.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Status is the externally visible state of a driver.
type Status struct {
	ID          string     `json:"id"`
	State       State      `json:"state"`
	ExitCode    *int       `json:"exitCode,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// ListResponse wraps the status of all known drivers.
type ListResponse struct {
	Drivers []Status `json:"drivers"`
}

// Notification reports a driver reaching a terminal state. Exactly one
// is emitted per driver.
type Notification struct {
	DriverID string
	State    State
	ExitCode int
	Err      error
	Meta     map[string]string
	Callback Callback
}

// Notifier delivers terminal-state notifications. Notify must not block
// beyond enqueueing.
type Notifier interface {
	Notify(n Notification)
}
