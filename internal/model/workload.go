package model

import "time"

// WorkloadName identifies a workload within one desired-state generation.
// It is the only key used for queue membership and state lookup.
type WorkloadName string

// String returns the name as a plain string.
func (n WorkloadName) String() string {
	return string(n)
}

// ExecutionState is the last known lifecycle state of a workload.
type ExecutionState string

// Execution state constants.
const (
	StatePending   ExecutionState = "pending"
	StateRunning   ExecutionState = "running"
	StateSucceeded ExecutionState = "succeeded"
	StateFailed    ExecutionState = "failed"
	StateStopping  ExecutionState = "stopping"
	StateRemoved   ExecutionState = "removed"
)

// validTransitions maps each state to the set of states it may transition to.
// removed -> pending covers a workload re-added under the same name.
var validTransitions = map[ExecutionState]map[ExecutionState]bool{
	StatePending: {
		StateRunning:  true,
		StateFailed:   true,
		StateStopping: true,
		StateRemoved:  true,
	},
	StateRunning: {
		StateSucceeded: true,
		StateFailed:    true,
		StateStopping:  true,
		StatePending:   true,
	},
	StateSucceeded: {
		StatePending:  true,
		StateStopping: true,
		StateRemoved:  true,
	},
	StateFailed: {
		StatePending:  true,
		StateStopping: true,
		StateRemoved:  true,
	},
	StateStopping: {
		StateRemoved: true,
		StateFailed:  true,
	},
	StateRemoved: {
		StatePending: true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to ExecutionState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// WorkloadSpec describes a workload the agent should run. Only Name and
// Dependencies matter for scheduling; the remaining fields are handed to the
// backend untouched.
type WorkloadSpec struct {
	Name             WorkloadName             `json:"name" yaml:"name"`
	Runtime          string                   `json:"runtime" yaml:"runtime"`
	Command          []string                 `json:"command,omitempty" yaml:"command,omitempty"`
	Env              map[string]string        `json:"env,omitempty" yaml:"env,omitempty"`
	ControlInterface bool                     `json:"control_interface,omitempty" yaml:"control_interface,omitempty"`
	Dependencies     map[WorkloadName]AddCond `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// DeletedWorkload names a workload to remove together with the conditions
// that must hold before removal.
type DeletedWorkload struct {
	Name         WorkloadName                `json:"name" yaml:"name"`
	Dependencies map[WorkloadName]DeleteCond `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// DesiredState is a batch of workloads to add or update and workloads to delete.
//
// Deletes are applied before adds. A name listed in both Deleted and
// Workloads is therefore removed and then started again as a fresh workload:
// the new instance starts only after the old one has reported removed.
type DesiredState struct {
	Workloads []WorkloadSpec    `json:"workloads,omitempty" yaml:"workloads,omitempty"`
	Deleted   []DeletedWorkload `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// WorkloadState is the recorded state of one workload.
type WorkloadState struct {
	Name       WorkloadName   `json:"name"`
	InstanceID string         `json:"instance_id,omitempty"`
	State      ExecutionState `json:"state"`
	ExitCode   *int           `json:"exit_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// LogLine represents a single persisted log line from a workload instance.
type LogLine struct {
	ID         int64        `json:"id"`
	InstanceID string       `json:"instance_id"`
	Name       WorkloadName `json:"name"`
	Seq        int          `json:"seq"`
	Line       string       `json:"line"`
	CreatedAt  time.Time    `json:"created_at"`
}
