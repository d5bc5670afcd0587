// Package workload provides the handle through which the agent talks to a
// running workload's execution task.
package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/seantiz/anvil/internal/model"
)

var (
	// ErrUpdateFailed is returned when an update could not reach the execution task.
	ErrUpdateFailed = errors.New("update workload failed")
	// ErrDeleteFailed is returned when a stop could not reach the execution task.
	ErrDeleteFailed = errors.New("delete workload failed")
	// ErrWorkloadDeleted is returned by calls on a handle after Delete.
	ErrWorkloadDeleted = errors.New("workload already deleted")
)

// ControlInterface is a live API channel granted to one running workload.
type ControlInterface interface {
	// APILocation returns the path the workload uses to reach the channel.
	APILocation() string
	// Abort starts teardown and returns without waiting for it.
	Abort()
}

// Workload is the handle for one workload's execution task. It owns the
// sending side of the task's command channel and at most one control
// interface.
type Workload struct {
	name model.WorkloadName

	mu      sync.Mutex
	sender  *Sender
	slot    controlSlot
	deleted bool
}

// New creates a handle. ci may be nil. Pass an untyped nil, not a typed nil
// pointer, when there is no control interface.
func New(name model.WorkloadName, sender *Sender, ci ControlInterface) *Workload {
	return &Workload{
		name:   name,
		sender: sender,
		slot:   controlSlot{current: ci},
	}
}

// Name returns the workload name.
func (w *Workload) Name() model.WorkloadName {
	return w.name
}

// ControlInterfacePath returns the access path of the installed control
// interface, or "" when none is installed.
func (w *Workload) ControlInterfacePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.slot.path()
}

// Update aborts the installed control interface, installs ci in its place and
// sends the new spec to the execution task. The old interface is always
// aborted before ci becomes visible.
func (w *Workload) Update(ctx context.Context, spec model.WorkloadSpec, ci ControlInterface) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deleted {
		return fmt.Errorf("update workload %s: %w", w.name, ErrWorkloadDeleted)
	}

	w.slot.replace(ci)

	if err := w.sender.Send(ctx, UpdateCommand(spec, w.slot.path())); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			return fmt.Errorf("%w: %s: %w", ErrUpdateFailed, w.name, err)
		}
		return fmt.Errorf("update workload %s: %w", w.name, err)
	}
	return nil
}

// Delete tears down the control interface and tells the execution task to
// stop. The handle is unusable afterwards, even when Delete fails.
func (w *Workload) Delete(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deleted {
		return fmt.Errorf("delete workload %s: %w", w.name, ErrWorkloadDeleted)
	}
	w.deleted = true

	w.slot.replace(nil)

	if err := w.sender.Send(ctx, StopCommand()); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			return fmt.Errorf("%w: %s: %w", ErrDeleteFailed, w.name, err)
		}
		return fmt.Errorf("delete workload %s: %w", w.name, err)
	}
	return nil
}

// controlSlot holds at most one control interface. The only way to change the
// occupant is replace, which aborts the old one before installing the new.
type controlSlot struct {
	current ControlInterface
}

func (s *controlSlot) replace(next ControlInterface) {
	if prev := s.current; prev != nil {
		s.current = nil
		prev.Abort()
	}
	s.current = next
}

func (s *controlSlot) path() string {
	if s.current == nil {
		return ""
	}
	return s.current.APILocation()
}
