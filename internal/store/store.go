package store

import (
	"context"

	"github.com/seantiz/anvil/internal/model"
)

// Store defines the persistence operations for workload states and logs.
type Store interface {
	UpsertWorkloadState(ctx context.Context, st model.WorkloadState) error
	GetWorkloadState(ctx context.Context, name model.WorkloadName) (*model.WorkloadState, error)
	ListWorkloadStates(ctx context.Context) ([]model.WorkloadState, error)
	InsertLogLine(ctx context.Context, instanceID string, name model.WorkloadName, seq int, line string) error
	GetLogLines(ctx context.Context, instanceID string) ([]model.LogLine, error)
	Close() error
}
