// Package container implements the container lifecycle state machine and
// its containerd-backed adapter (spec.md §4.9): Created/Running/Paused/
// Stopped, per-container operations (start/stop/exec/stats/logs/remove),
// and JSON-file-per-container metadata persistence.
package container

import (
	"time"
)

// State is one of the four lifecycle states spec.md §4.9 names.
type State string

const (
	Created State = "created"
	Running State = "running"
	Paused  State = "paused"
	Stopped State = "stopped"
)

// Container is one container's persisted metadata (spec.md §4.9:
// "Metadata is persisted as one JSON file per container under a
// data-root").
type Container struct {
	ID        string    `json:"id"`
	BundlePath string   `json:"bundle_path"`
	State     State     `json:"state"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	Entrypoint []string          `json:"entrypoint"`
	Env        []string          `json:"env,omitempty"`
	Cwd        string            `json:"cwd,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// ExecSession tracks one `exec` task attached to a running container,
// lifecycle-independent of the container's main process (spec.md §4.9).
type ExecSession struct {
	ID          string
	ContainerID string
	Command     []string
	Env         []string
	Workdir     string
	PID         int
	ExitCode    int
	Running     bool
}

// validTransitions enumerates every legal state edge (spec.md §4.9):
// "Create -> Created; Start Created->Running; Pause Running->Paused; Unpause
// Paused->Running; Stop Running∪Paused->Stopped ...; Kill Running∪Paused->
// Stopped; Remove Stopped->(gone). Any other edge is rejected with
// InvalidState."
var validTransitions = map[State]map[State]bool{
	Created: {Running: true},
	Running: {Paused: true, Stopped: true},
	Paused:  {Running: true, Stopped: true},
}

func canTransition(from, to State) bool {
	return validTransitions[from][to]
}
