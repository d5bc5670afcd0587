package scheduler

import (
	"slices"

	"github.com/seantiz/anvil/internal/model"
)

// StateLookup returns the last known state of a workload. The second return
// value is false when no state has been recorded for the name.
type StateLookup interface {
	GetWorkloadState(name model.WorkloadName) (model.ExecutionState, bool)
}

// condition is the capability shared by add- and delete-conditions.
type condition interface {
	FulfilledBy(state model.ExecutionState) bool
}

type startQueue map[model.WorkloadName]model.WorkloadSpec

type deleteQueue map[model.WorkloadName]model.DeletedWorkload

// DependencyScheduler keeps workloads whose dependencies are not yet met.
type DependencyScheduler struct {
	startQueue  startQueue
	deleteQueue deleteQueue
}

// New creates a scheduler with empty queues.
func New() *DependencyScheduler {
	return &DependencyScheduler{
		startQueue:  make(startQueue),
		deleteQueue: make(deleteQueue),
	}
}

// SplitWorkloadsToReadyAndWaiting partitions specs by whether they declare
// any dependency. Relative input order is kept in both results.
func SplitWorkloadsToReadyAndWaiting(specs []model.WorkloadSpec) (ready, waiting []model.WorkloadSpec) {
	for _, spec := range specs {
		if len(spec.Dependencies) == 0 {
			ready = append(ready, spec)
		} else {
			waiting = append(waiting, spec)
		}
	}
	return ready, waiting
}

// SplitDeletedWorkloadsToReadyAndWaiting partitions deleted workloads by
// whether they declare any delete-condition.
func SplitDeletedWorkloadsToReadyAndWaiting(deleted []model.DeletedWorkload) (ready, waiting []model.DeletedWorkload) {
	for _, dw := range deleted {
		if len(dw.Dependencies) == 0 {
			ready = append(ready, dw)
		} else {
			waiting = append(waiting, dw)
		}
	}
	return ready, waiting
}

// PutOnWaitingQueue registers specs on the start queue. A spec replaces any
// entry already queued under the same name.
func (s *DependencyScheduler) PutOnWaitingQueue(specs []model.WorkloadSpec) {
	for _, spec := range specs {
		s.startQueue[spec.Name] = spec
	}
}

// PutOnDeleteWaitingQueue registers deleted workloads on the delete queue,
// replacing any entry already queued under the same name.
func (s *DependencyScheduler) PutOnDeleteWaitingQueue(deleted []model.DeletedWorkload) {
	for _, dw := range deleted {
		s.deleteQueue[dw.Name] = dw
	}
}

// NextWorkloadsToStart removes and returns every queued spec whose
// add-conditions are all fulfilled by states.
func (s *DependencyScheduler) NextWorkloadsToStart(states StateLookup) []model.WorkloadSpec {
	var ready []model.WorkloadSpec
	for name, spec := range s.startQueue {
		if fulfilled(spec.Dependencies, states) {
			ready = append(ready, spec)
			delete(s.startQueue, name)
		}
	}
	return ready
}

// NextWorkloadsToDelete removes and returns every queued deleted workload
// whose delete-conditions are all fulfilled by states.
func (s *DependencyScheduler) NextWorkloadsToDelete(states StateLookup) []model.DeletedWorkload {
	var ready []model.DeletedWorkload
	for name, dw := range s.deleteQueue {
		if fulfilled(dw.Dependencies, states) {
			ready = append(ready, dw)
			delete(s.deleteQueue, name)
		}
	}
	return ready
}

// WaitingToStart returns the sorted names on the start queue.
func (s *DependencyScheduler) WaitingToStart() []model.WorkloadName {
	return sortedNames(s.startQueue)
}

// WaitingToDelete returns the sorted names on the delete queue.
func (s *DependencyScheduler) WaitingToDelete() []model.WorkloadName {
	return sortedNames(s.deleteQueue)
}

// fulfilled reports whether every dependency has a recorded state accepted
// by its condition. A dependency without a recorded state is never fulfilled.
func fulfilled[C condition](deps map[model.WorkloadName]C, states StateLookup) bool {
	for dep, cond := range deps {
		state, ok := states.GetWorkloadState(dep)
		if !ok || !cond.FulfilledBy(state) {
			return false
		}
	}
	return true
}

func sortedNames[V any](queue map[model.WorkloadName]V) []model.WorkloadName {
	names := make([]model.WorkloadName, 0, len(queue))
	for name := range queue {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
