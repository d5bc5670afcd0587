// Package state keeps the agent's in-memory view of workload lifecycle
// states. It is the lookup the dependency scheduler evaluates conditions
// against.
package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/anvil/internal/model"
)

// ErrInvalidTransition is returned by Set when the new state is not reachable
// from the recorded one.
var ErrInvalidTransition = errors.New("invalid state transition")

// Storage maps workload names to their last reported state.
// It is safe for concurrent use.
type Storage struct {
	mu      sync.RWMutex
	states  map[model.WorkloadName]model.WorkloadState
	changed chan struct{}
}

// New creates an empty storage.
func New() *Storage {
	return &Storage{
		states:  make(map[model.WorkloadName]model.WorkloadState),
		changed: make(chan struct{}, 1),
	}
}

// GetWorkloadState returns the execution state recorded for name.
func (s *Storage) GetWorkloadState(name model.WorkloadName) (model.ExecutionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[name]
	return st.State, ok
}

// Get returns the full record for name.
func (s *Storage) Get(name model.WorkloadName) (model.WorkloadState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[name]
	return st, ok
}

// Set records a new state for st.Name. Re-reporting the current state is
// allowed; any other move must be a valid lifecycle transition. A successful
// Set fires the change signal.
func (s *Storage) Set(st model.WorkloadState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	prev, ok := s.states[st.Name]
	if ok && prev.State != st.State && !model.ValidTransition(prev.State, st.State) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, st.Name, prev.State, st.State)
	}
	s.states[st.Name] = st
	s.mu.Unlock()

	s.notify()
	return nil
}

// List returns every recorded state ordered by name.
func (s *Storage) List() []model.WorkloadState {
	s.mu.RLock()
	out := make([]model.WorkloadState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.WorkloadState) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})
	return out
}

// Changed returns a channel that receives a value after one or more Set
// calls. Bursts of changes coalesce into a single pending signal.
func (s *Storage) Changed() <-chan struct{} {
	return s.changed
}

func (s *Storage) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
