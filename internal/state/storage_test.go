package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/seantiz/anvil/internal/model"
)

func set(t *testing.T, s *Storage, name model.WorkloadName, st model.ExecutionState) {
	t.Helper()
	if err := s.Set(model.WorkloadState{Name: name, State: st}); err != nil {
		t.Fatalf("Set(%s, %s): %v", name, st, err)
	}
}

func TestGetWorkloadStateMissing(t *testing.T) {
	s := New()
	if st, ok := s.GetWorkloadState("nope"); ok {
		t.Errorf("GetWorkloadState(nope) = %q, true; want absent", st)
	}
}

func TestSetAndGet(t *testing.T) {
	s := New()
	set(t, s, "db", model.StatePending)
	set(t, s, "db", model.StateRunning)

	st, ok := s.GetWorkloadState("db")
	if !ok || st != model.StateRunning {
		t.Fatalf("GetWorkloadState(db) = %q, %v; want running", st, ok)
	}

	rec, ok := s.Get("db")
	if !ok {
		t.Fatal("Get(db) missing")
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestSetRejectsInvalidTransition(t *testing.T) {
	s := New()
	set(t, s, "db", model.StatePending)
	set(t, s, "db", model.StateRunning)
	set(t, s, "db", model.StateSucceeded)

	err := s.Set(model.WorkloadState{Name: "db", State: model.StateRunning})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Set succeeded->running error = %v, want ErrInvalidTransition", err)
	}
	if st, _ := s.GetWorkloadState("db"); st != model.StateSucceeded {
		t.Errorf("state = %q after rejected Set, want succeeded", st)
	}
}

func TestSetSameStateAllowed(t *testing.T) {
	s := New()
	set(t, s, "db", model.StatePending)
	set(t, s, "db", model.StatePending)
}

func TestListSorted(t *testing.T) {
	s := New()
	set(t, s, "web", model.StatePending)
	set(t, s, "api", model.StatePending)
	set(t, s, "db", model.StatePending)

	list := s.List()
	want := []model.WorkloadName{"api", "db", "web"}
	if len(list) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(list), len(want))
	}
	for i, st := range list {
		if st.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, st.Name, want[i])
		}
	}
}

func TestChangedCoalesces(t *testing.T) {
	s := New()
	set(t, s, "a", model.StatePending)
	set(t, s, "b", model.StatePending)

	select {
	case <-s.Changed():
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-s.Changed():
		t.Fatal("expected signals to coalesce")
	default:
	}
}

func TestConcurrentSetAndRead(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := range 20 {
		name := model.WorkloadName(string(rune('a' + i)))
		wg.Go(func() {
			_ = s.Set(model.WorkloadState{Name: name, State: model.StatePending})
			s.GetWorkloadState(name)
			s.List()
		})
	}
	wg.Wait()
	if got := len(s.List()); got != 20 {
		t.Errorf("List() len = %d, want 20", got)
	}
}
