package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/workload"
)

// Close reasons handed to the command receiver.
const (
	reasonStopped  = "workload stopped"
	reasonShutdown = "agent shutting down"
)

// task is the execution task of one workload. It consumes commands from the
// workload handle and runs at most one instance at a time.
type task struct {
	engine   *Engine
	name     model.WorkloadName
	receiver *workload.Receiver
	logger   *slog.Logger
	current  *instance

	// retired is closed when the previous task for the same name has exited.
	// Nil when there was none.
	retired <-chan struct{}
	done    chan struct{}
}

// instance is one execution of a spec. Once stopped it reports nothing more.
type instance struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool

	// Set by the instance goroutine before done is closed.
	backend backend.Backend
}

func newTask(e *Engine, name model.WorkloadName, receiver *workload.Receiver, retired <-chan struct{}) *task {
	return &task{
		engine:   e,
		name:     name,
		receiver: receiver,
		logger:   e.logger.With("component", "task", "workload", name),
		retired:  retired,
		done:     make(chan struct{}),
	}
}

func (t *task) run(ctx context.Context) {
	defer close(t.done)

	// The retired task still reports stopping and removed under this name.
	// Its last report must land before this task's first one.
	if t.retired != nil {
		select {
		case <-t.retired:
		case <-ctx.Done():
			t.receiver.Close(reasonShutdown)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			t.stopInstance(context.Background())
			t.receiver.Close(reasonShutdown)
			return
		case cmd := <-t.receiver.Commands():
			switch cmd.Kind {
			case workload.CommandUpdate:
				t.stopInstance(ctx)
				t.startInstance(ctx, cmd.Spec, cmd.ControlInterfacePath)
			case workload.CommandStop:
				t.stop(ctx)
				return
			}
		}
	}
}

func (t *task) stop(ctx context.Context) {
	var instanceID string
	if t.current != nil {
		instanceID = t.current.id
	}

	t.engine.reportState(model.WorkloadState{Name: t.name, InstanceID: instanceID, State: model.StateStopping})
	t.stopInstance(context.WithoutCancel(ctx))
	t.engine.reportState(model.WorkloadState{Name: t.name, InstanceID: instanceID, State: model.StateRemoved})
	t.receiver.Close(reasonStopped)
	t.logger.Info("workload removed")
}

// stopInstance cancels the current instance, waits for it and releases its
// backend resources.
func (t *task) stopInstance(ctx context.Context) {
	inst := t.current
	if inst == nil {
		return
	}
	t.current = nil

	inst.mu.Lock()
	inst.stopped = true
	inst.mu.Unlock()
	inst.cancel()
	<-inst.done

	if inst.backend != nil {
		if err := inst.backend.Cleanup(ctx, inst.id); err != nil {
			t.logger.Error("backend cleanup failed", "instance_id", inst.id, "error", err)
		}
	}
}

func (t *task) startInstance(ctx context.Context, spec model.WorkloadSpec, controlInterfacePath string) {
	instCtx, cancel := context.WithCancel(ctx)
	inst := &instance{
		id:     model.NewID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.current = inst

	go func() {
		defer close(inst.done)
		defer cancel()
		t.execute(instCtx, inst, spec, controlInterfacePath)
	}()
}

// report records a state for the instance unless it has been stopped.
func (t *task) report(inst *instance, st model.WorkloadState) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped {
		return
	}
	st.Name = t.name
	st.InstanceID = inst.id
	t.engine.reportState(st)
}

// execute runs one instance: pending, running, then succeeded or failed.
func (t *task) execute(ctx context.Context, inst *instance, spec model.WorkloadSpec, controlInterfacePath string) {
	e := t.engine
	defer e.broker.Close(inst.id)

	t.report(inst, model.WorkloadState{State: model.StatePending})

	b, err := e.registry.Resolve(spec.Runtime)
	if err != nil {
		t.report(inst, model.WorkloadState{State: model.StateFailed, Error: err.Error()})
		return
	}
	inst.backend = b

	t.report(inst, model.WorkloadState{State: model.StateRunning})
	start := time.Now()

	// The LogWriter dual-writes: persist to SQLite for history, then publish
	// to the broker for live streaming.
	persistCtx := context.WithoutCancel(ctx)
	var seq atomic.Int32
	bspec := backend.WorkloadSpec{
		InstanceID:           inst.id,
		Name:                 spec.Name,
		Runtime:              spec.Runtime,
		Command:              spec.Command,
		Env:                  spec.Env,
		ControlInterfacePath: controlInterfacePath,
		LogWriter: func(line string) {
			currentSeq := int(seq.Add(1) - 1)
			if err := e.store.InsertLogLine(persistCtx, inst.id, spec.Name, currentSeq, line); err != nil {
				t.logger.Error("failed to persist log line", "instance_id", inst.id, "seq", currentSeq, "error", err)
			}
			e.broker.Publish(inst.id, line)
		},
	}

	result, err := b.Execute(ctx, bspec)
	if err != nil {
		t.report(inst, model.WorkloadState{State: model.StateFailed, Error: err.Error()})
		return
	}

	exitCode := result.ExitCode
	st := model.WorkloadState{State: model.StateSucceeded, ExitCode: &exitCode, Error: result.Error}
	if exitCode != 0 {
		st.State = model.StateFailed
	}
	t.report(inst, st)
	t.logger.Info("instance finished",
		"instance_id", inst.id,
		"state", st.State,
		"exit_code", exitCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
