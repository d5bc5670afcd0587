package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/controlinterface"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/scheduler"
	"github.com/seantiz/anvil/internal/state"
	"github.com/seantiz/anvil/internal/store"
	"github.com/seantiz/anvil/internal/workload"
)

// DefaultCommandBuffer is the command channel capacity used when Options
// leaves it unset.
const DefaultCommandBuffer = 5

// Options tunes an Engine.
type Options struct {
	// RunDir is where control interface FIFOs are created.
	RunDir string
	// CommandBuffer is the capacity of each workload's command channel.
	CommandBuffer int
}

// QueueSnapshot lists the workloads waiting on dependencies.
type QueueSnapshot struct {
	Start  []model.WorkloadName `json:"start"`
	Delete []model.WorkloadName `json:"delete"`
}

// Engine owns the dependency scheduler and the workload handles.
type Engine struct {
	store    store.Store
	registry *backend.Registry
	logger   *slog.Logger
	states   *state.Storage
	broker   *LogBroker
	opts     Options

	// mu guards scheduler, workloads, tasks and retired.
	mu        sync.Mutex
	scheduler *scheduler.DependencyScheduler
	workloads map[model.WorkloadName]*workload.Workload
	tasks     map[model.WorkloadName]*task
	// retired holds the done channel of the last deleted task per name until
	// a new task for that name takes it over.
	retired map[model.WorkloadName]<-chan struct{}

	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	wg          sync.WaitGroup
}

// NewEngine creates a new engine.
func NewEngine(s store.Store, reg *backend.Registry, logger *slog.Logger, opts Options) *Engine {
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = DefaultCommandBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:       s,
		registry:    reg,
		logger:      logger.With("component", "engine"),
		states:      state.New(),
		broker:      NewLogBroker(),
		opts:        opts,
		scheduler:   scheduler.New(),
		workloads:   make(map[model.WorkloadName]*workload.Workload),
		tasks:       make(map[model.WorkloadName]*task),
		retired:     make(map[model.WorkloadName]<-chan struct{}),
		tasksCtx:    ctx,
		cancelTasks: cancel,
	}
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// States returns the in-memory state storage.
func (e *Engine) States() *state.Storage {
	return e.states
}

// Registry returns the backend registry.
func (e *Engine) Registry() *backend.Registry {
	return e.registry
}

// Store returns the persistent store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Waiting returns the names currently waiting in each queue.
func (e *Engine) Waiting() QueueSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QueueSnapshot{
		Start:  e.scheduler.WaitingToStart(),
		Delete: e.scheduler.WaitingToDelete(),
	}
}

// ApplyState applies a batch of added and deleted workloads. Entries without
// dependencies are dispatched at once, the rest are queued, and then one
// promotion pass runs. Dispatch failures are logged and counted, not
// returned; the error return is for a desired state that fails validation.
func (e *Engine) ApplyState(ctx context.Context, ds model.DesiredState) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	readyDeleted, waitingDeleted := scheduler.SplitDeletedWorkloadsToReadyAndWaiting(ds.Deleted)
	for _, dw := range readyDeleted {
		e.dispatchDelete(ctx, dw)
	}
	e.scheduler.PutOnDeleteWaitingQueue(waitingDeleted)

	ready, waiting := scheduler.SplitWorkloadsToReadyAndWaiting(ds.Workloads)
	for _, spec := range ready {
		e.dispatchStart(ctx, spec)
	}
	e.scheduler.PutOnWaitingQueue(waiting)

	e.logger.Info("desired state applied",
		"ready", len(ready), "waiting", len(waiting),
		"ready_deleted", len(readyDeleted), "waiting_deleted", len(waitingDeleted),
	)

	e.promoteLocked(ctx)
	return nil
}

// Run re-evaluates the waiting queues each time a workload reports a new
// state. When ctx ends it deletes every workload and waits for their tasks.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-e.states.Changed():
			e.mu.Lock()
			e.promoteLocked(ctx)
			e.mu.Unlock()
		}
	}
}

// Wait blocks until all execution tasks have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ReportState records a workload state in memory and in the store. The
// in-memory write wakes Run.
func (e *Engine) ReportState(st model.WorkloadState) error {
	if err := e.states.Set(st); err != nil {
		return err
	}
	if err := e.store.UpsertWorkloadState(context.Background(), st); err != nil {
		e.logger.Error("failed to persist workload state", "workload", st.Name, "error", err)
	}
	stateReportsTotal.WithLabelValues(string(st.State)).Inc()
	return nil
}

func (e *Engine) reportState(st model.WorkloadState) {
	if err := e.ReportState(st); err != nil {
		e.logger.Warn("state report rejected", "workload", st.Name, "state", st.State, "error", err)
	}
}

// HandleControlRequest serves a request a workload sent over its control
// interface.
func (e *Engine) HandleControlRequest(ctx context.Context, name model.WorkloadName, req controlinterface.Request) controlinterface.Response {
	logger := e.logger.With("workload", name, "request_id", req.ID, "type", req.Type)

	switch req.Type {
	case controlinterface.RequestCompleteState:
		return controlinterface.Response{States: e.states.List()}
	case controlinterface.RequestUpdateState:
		if req.State == nil {
			return controlinterface.Response{Error: "update_state requires a state"}
		}
		// The request may replace the caller's own control interface, which
		// cancels ctx; the update itself must still go through.
		if err := e.ApplyState(context.WithoutCancel(ctx), *req.State); err != nil {
			logger.Warn("control interface update rejected", "error", err)
			return controlinterface.Response{Error: err.Error()}
		}
		logger.Info("control interface update applied")
		return controlinterface.Response{}
	default:
		return controlinterface.Response{Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}
}

// promoteLocked harvests every queued entry whose conditions now hold and
// dispatches it. The caller holds e.mu.
func (e *Engine) promoteLocked(ctx context.Context) {
	deletes := e.scheduler.NextWorkloadsToDelete(e.states)
	for _, dw := range deletes {
		e.dispatchDelete(ctx, dw)
	}
	starts := e.scheduler.NextWorkloadsToStart(e.states)
	for _, spec := range starts {
		e.dispatchStart(ctx, spec)
	}

	promotionsTotal.WithLabelValues(queueDelete).Add(float64(len(deletes)))
	promotionsTotal.WithLabelValues(queueStart).Add(float64(len(starts)))
	waitingWorkloads.WithLabelValues(queueStart).Set(float64(len(e.scheduler.WaitingToStart())))
	waitingWorkloads.WithLabelValues(queueDelete).Set(float64(len(e.scheduler.WaitingToDelete())))

	if len(deletes)+len(starts) > 0 {
		e.logger.Debug("promoted waiting workloads", "started", len(starts), "deleted", len(deletes))
	}
}

// dispatchStart hands spec to its workload handle, creating the handle and
// execution task on first use. The caller holds e.mu.
func (e *Engine) dispatchStart(ctx context.Context, spec model.WorkloadSpec) {
	var ci workload.ControlInterface
	if spec.ControlInterface {
		pc, err := controlinterface.New(e.opts.RunDir, spec.Name, e, e.logger)
		if err != nil {
			dispatchFailuresTotal.WithLabelValues(opControlInterface).Inc()
			e.logger.Error("failed to create control interface", "workload", spec.Name, "error", err)
		} else {
			ci = pc
		}
	}

	h, ok := e.workloads[spec.Name]
	if !ok {
		sender, receiver := workload.NewChannel(e.opts.CommandBuffer)
		h = workload.New(spec.Name, sender, nil)
		e.workloads[spec.Name] = h

		t := newTask(e, spec.Name, receiver, e.takeRetired(spec.Name))
		e.tasks[spec.Name] = t
		e.wg.Go(func() { t.run(e.tasksCtx) })
	}

	if err := h.Update(ctx, spec, ci); err != nil {
		dispatchFailuresTotal.WithLabelValues(opUpdate).Inc()
		e.logger.Error("failed to dispatch workload", "workload", spec.Name, "error", err)
	}
}

// dispatchDelete stops the workload's execution task and forgets its handle.
// The caller holds e.mu.
func (e *Engine) dispatchDelete(ctx context.Context, dw model.DeletedWorkload) {
	h, ok := e.workloads[dw.Name]
	if !ok {
		e.logger.Warn("delete requested for unknown workload", "workload", dw.Name)
		return
	}
	delete(e.workloads, dw.Name)
	if t, ok := e.tasks[dw.Name]; ok {
		e.retired[dw.Name] = t.done
		delete(e.tasks, dw.Name)
	}

	if err := h.Delete(ctx); err != nil {
		dispatchFailuresTotal.WithLabelValues(opDelete).Inc()
		e.logger.Error("failed to delete workload", "workload", dw.Name, "error", err)
	}
}

// takeRetired returns the done channel of the task last deleted under name,
// or nil when it has already exited. The caller holds e.mu.
func (e *Engine) takeRetired(name model.WorkloadName) <-chan struct{} {
	done, ok := e.retired[name]
	if !ok {
		return nil
	}
	delete(e.retired, name)
	select {
	case <-done:
		return nil
	default:
		return done
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	for name, h := range e.workloads {
		if err := h.Delete(context.Background()); err != nil {
			e.logger.Warn("failed to stop workload on shutdown", "workload", name, "error", err)
		}
		delete(e.workloads, name)
		delete(e.tasks, name)
	}
	clear(e.retired)
	e.mu.Unlock()

	e.wg.Wait()
	e.cancelTasks()
	e.logger.Info("engine stopped")
}
