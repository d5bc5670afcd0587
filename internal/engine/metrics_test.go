package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

func TestPromotionMetrics(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	e := NewEngine(s, backend.NewRegistry(), slog.New(slog.NewJSONHandler(io.Discard, nil)), Options{RunDir: t.TempDir()})
	defer e.shutdown()
	ctx := context.Background()

	promotedBefore := testutil.ToFloat64(promotionsTotal.WithLabelValues(queueStart))
	reportsBefore := testutil.ToFloat64(stateReportsTotal.WithLabelValues(string(model.StateRunning)))

	err = e.ApplyState(ctx, model.DesiredState{Workloads: []model.WorkloadSpec{{
		Name:         "app",
		Runtime:      "none",
		Dependencies: map[model.WorkloadName]model.AddCond{"db": model.AddCondRunning},
	}}})
	if err != nil {
		t.Fatalf("ApplyState: %v", err)
	}
	if got := testutil.ToFloat64(waitingWorkloads.WithLabelValues(queueStart)); got != 1 {
		t.Errorf("waiting start gauge = %v, want 1", got)
	}

	if err := e.ReportState(model.WorkloadState{Name: "db", State: model.StateRunning}); err != nil {
		t.Fatalf("ReportState: %v", err)
	}
	e.mu.Lock()
	e.promoteLocked(ctx)
	e.mu.Unlock()

	if got := testutil.ToFloat64(promotionsTotal.WithLabelValues(queueStart)) - promotedBefore; got != 1 {
		t.Errorf("start promotions delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(waitingWorkloads.WithLabelValues(queueStart)); got != 0 {
		t.Errorf("waiting start gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(stateReportsTotal.WithLabelValues(string(model.StateRunning))) - reportsBefore; got < 1 {
		t.Errorf("running reports delta = %v, want at least 1", got)
	}
}

func TestReportStateRejectsInvalidTransition(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	e := NewEngine(s, backend.NewRegistry(), slog.New(slog.NewJSONHandler(io.Discard, nil)), Options{})

	if err := e.ReportState(model.WorkloadState{Name: "db", State: model.StateSucceeded}); err != nil {
		t.Fatalf("ReportState: %v", err)
	}
	if err := e.ReportState(model.WorkloadState{Name: "db", State: model.StateRunning}); err == nil {
		t.Fatal("expected succeeded -> running to be rejected")
	}

	persisted, err := s.GetWorkloadState(context.Background(), "db")
	if err != nil {
		t.Fatalf("GetWorkloadState: %v", err)
	}
	if persisted.State != model.StateSucceeded {
		t.Errorf("persisted state = %q, want succeeded", persisted.State)
	}
}
