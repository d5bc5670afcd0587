//go:build linux || darwin

package process

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/backend"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	return New(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) write(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

func TestExecuteStreamsLines(t *testing.T) {
	b := newTestBackend(t)
	logs := &lineCollector{}

	result, err := b.Execute(context.Background(), backend.WorkloadSpec{
		InstanceID: "i-1",
		Name:       "echo",
		Command:    []string{"/bin/sh", "-c", "echo one; echo two; echo three >&2"},
		LogWriter:  logs.write,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}

	got := logs.get()
	slices.Sort(got)
	if want := []string{"one", "three", "two"}; !slices.Equal(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	b := newTestBackend(t)

	result, err := b.Execute(context.Background(), backend.WorkloadSpec{
		Name:    "fail",
		Command: []string{"/bin/sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Error == "" {
		t.Error("expected Error to describe the exit")
	}
}

func TestExecuteEnvAndControlInterface(t *testing.T) {
	b := newTestBackend(t)
	logs := &lineCollector{}

	_, err := b.Execute(context.Background(), backend.WorkloadSpec{
		Name:                 "env",
		Command:              []string{"/bin/sh", "-c", "echo $GREETING; echo $" + ControlInterfaceEnv},
		Env:                  map[string]string{"GREETING": "hello"},
		ControlInterfacePath: "/run/anvil/env/x/control_interface",
		LogWriter:            logs.write,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{"hello", "/run/anvil/env/x/control_interface"}
	if got := logs.get(); !slices.Equal(got, want) {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestExecuteCancelled(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan backend.WorkloadResult, 1)
	go func() {
		result, _ := b.Execute(ctx, backend.WorkloadSpec{
			Name:    "sleeper",
			Command: []string{"/bin/sh", "-c", "exec sleep 30"},
		})
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if result.ExitCode == 0 {
			t.Error("cancelled process reported exit code 0")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	b := newTestBackend(t)
	if _, err := b.Execute(context.Background(), backend.WorkloadSpec{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Execute(context.Background(), backend.WorkloadSpec{
		Name:    "missing",
		Command: []string{"/nonexistent/anvil-test-binary"},
	})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}
