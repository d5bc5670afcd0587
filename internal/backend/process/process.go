// Package process implements a backend that runs workloads as local child
// processes.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/backend"
)

// Name is the runtime this backend registers under.
const Name = "process"

// ControlInterfaceEnv tells a workload where its control interface lives.
const ControlInterfaceEnv = "ANVIL_CONTROL_INTERFACE"

// Backend runs a workload's Command with os/exec.
type Backend struct {
	logger *slog.Logger
	// WaitDelay bounds how long Execute waits for output pipes after the
	// process has been killed.
	WaitDelay time.Duration
}

var _ backend.Backend = (*Backend)(nil)

// New creates a process backend.
func New(logger *slog.Logger) *Backend {
	return &Backend{
		logger:    logger.With("component", "process_backend"),
		WaitDelay: 5 * time.Second,
	}
}

// Capabilities reports the process runtime.
func (b *Backend) Capabilities() backend.BackendCapabilities {
	return backend.BackendCapabilities{
		Name:              Name,
		SupportedRuntimes: []string{Name},
	}
}

// Execute starts the command and blocks until it exits or ctx is cancelled.
// A non-zero exit is reported in the result, not as an error; the error
// return is for failures to start or to observe the process.
func (b *Backend) Execute(ctx context.Context, spec backend.WorkloadSpec) (backend.WorkloadResult, error) {
	if len(spec.Command) == 0 {
		return backend.WorkloadResult{}, fmt.Errorf("workload %s: empty command", spec.Name)
	}

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.WaitDelay = b.WaitDelay

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if spec.ControlInterfacePath != "" {
		cmd.Env = append(cmd.Env, ControlInterfaceEnv+"="+spec.ControlInterfacePath)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return backend.WorkloadResult{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return backend.WorkloadResult{}, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return backend.WorkloadResult{}, fmt.Errorf("start command: %w", err)
	}
	b.logger.Debug("process started", "workload", spec.Name, "instance_id", spec.InstanceID, "pid", cmd.Process.Pid)

	// Serializes LogWriter calls from the stdout and stderr readers.
	var writeMu sync.Mutex
	var wg sync.WaitGroup
	wg.Go(func() { streamLines(stdoutPipe, &writeMu, spec.LogWriter) })
	wg.Go(func() { streamLines(stderrPipe, &writeMu, spec.LogWriter) })
	wg.Wait()

	waitErr := cmd.Wait()
	result := backend.WorkloadResult{DurationMS: int(time.Since(start).Milliseconds())}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result, fmt.Errorf("wait: %w", waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Error = waitErr.Error()
		if ctx.Err() != nil {
			result.Error = fmt.Sprintf("cancelled: %v", context.Cause(ctx))
		}
	}

	return result, nil
}

// Cleanup is a no-op: a process holds nothing once it has exited.
func (b *Backend) Cleanup(_ context.Context, _ string) error {
	return nil
}

// streamLines reads lines from r and hands each to logWriter.
func streamLines(r io.Reader, mu *sync.Mutex, logWriter func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if logWriter == nil {
			continue
		}
		mu.Lock()
		logWriter(scanner.Text())
		mu.Unlock()
	}
}
