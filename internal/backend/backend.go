package backend

import (
	"context"

	"github.com/seantiz/anvil/internal/model"
)

// Backend is the interface that all workload runtimes must implement.
type Backend interface {
	// Execute runs one instance of a workload until it exits or ctx is
	// cancelled.
	Execute(ctx context.Context, spec WorkloadSpec) (WorkloadResult, error)

	// Capabilities reports what runtimes this backend supports.
	Capabilities() BackendCapabilities

	// Cleanup releases any resources held for the given instance.
	Cleanup(ctx context.Context, instanceID string) error
}

// WorkloadSpec describes one instance of a workload handed to a backend.
type WorkloadSpec struct {
	InstanceID string             `json:"instance_id"`
	Name       model.WorkloadName `json:"name"`
	Runtime    string             `json:"runtime"`
	Command    []string           `json:"command"`
	Env        map[string]string  `json:"env,omitempty"`

	// ControlInterfacePath is the directory of the instance's control
	// interface FIFOs, or empty when none is bound.
	ControlInterfacePath string `json:"control_interface_path,omitempty"`

	// LogWriter is an optional callback that backends invoke once per output
	// line during execution.
	LogWriter func(line string) `json:"-"`
}

// WorkloadResult holds the outcome of one executed instance.
type WorkloadResult struct {
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
	DurationMS int    `json:"duration_ms"`
}

// BackendCapabilities describes what a backend supports.
type BackendCapabilities struct {
	Name              string   `json:"name"`
	SupportedRuntimes []string `json:"supported_runtimes"`
}
