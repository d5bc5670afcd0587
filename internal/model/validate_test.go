package model

import (
	"errors"
	"strings"
	"testing"
)

func TestDesiredStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		state   DesiredState
		wantErr string
	}{
		{
			name: "valid",
			state: DesiredState{
				Workloads: []WorkloadSpec{
					{Name: "db"},
					{Name: "app", Dependencies: map[WorkloadName]AddCond{"db": AddCondRunning}},
				},
				Deleted: []DeletedWorkload{{Name: "old"}},
			},
		},
		{name: "empty", state: DesiredState{}},
		{
			name: "delete and re-add",
			state: DesiredState{
				Workloads: []WorkloadSpec{{Name: "db"}},
				Deleted:   []DeletedWorkload{{Name: "db"}},
			},
		},
		{
			name:    "missing name",
			state:   DesiredState{Workloads: []WorkloadSpec{{Runtime: "process"}}},
			wantErr: "name is required",
		},
		{
			name:    "duplicate workload",
			state:   DesiredState{Workloads: []WorkloadSpec{{Name: "a"}, {Name: "a"}}},
			wantErr: `duplicate name "a"`,
		},
		{
			name: "self dependency",
			state: DesiredState{Workloads: []WorkloadSpec{
				{Name: "a", Dependencies: map[WorkloadName]AddCond{"a": AddCondRunning}},
			}},
			wantErr: "depends on itself",
		},
		{
			name:    "duplicate deleted",
			state:   DesiredState{Deleted: []DeletedWorkload{{Name: "x"}, {Name: "x"}}},
			wantErr: `duplicate name "x"`,
		},
		{
			name: "same name added and deleted",
			state: DesiredState{
				Workloads: []WorkloadSpec{{Name: "a"}},
				Deleted:   []DeletedWorkload{{Name: "a"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidDesiredState) {
				t.Fatalf("Validate() = %v, want ErrInvalidDesiredState", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
