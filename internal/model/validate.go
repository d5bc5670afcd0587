package model

import (
	"errors"
	"fmt"
)

// ErrInvalidDesiredState is returned by DesiredState.Validate.
var ErrInvalidDesiredState = errors.New("invalid desired state")

// Validate checks that every workload and deleted workload is named, that
// names are unique within each list, and that nothing depends on itself.
// The same name may appear in both lists; see DesiredState for the order.
func (d DesiredState) Validate() error {
	var errs []error

	seen := make(map[WorkloadName]bool, len(d.Workloads))
	for i, w := range d.Workloads {
		switch {
		case w.Name == "":
			errs = append(errs, fmt.Errorf("workloads[%d]: name is required", i))
		case seen[w.Name]:
			errs = append(errs, fmt.Errorf("workloads[%d]: duplicate name %q", i, w.Name))
		}
		seen[w.Name] = true
		if _, ok := w.Dependencies[w.Name]; ok && w.Name != "" {
			errs = append(errs, fmt.Errorf("workload %q depends on itself", w.Name))
		}
	}

	seenDeleted := make(map[WorkloadName]bool, len(d.Deleted))
	for i, dw := range d.Deleted {
		switch {
		case dw.Name == "":
			errs = append(errs, fmt.Errorf("deleted[%d]: name is required", i))
		case seenDeleted[dw.Name]:
			errs = append(errs, fmt.Errorf("deleted[%d]: duplicate name %q", i, dw.Name))
		}
		seenDeleted[dw.Name] = true
		if _, ok := dw.Dependencies[dw.Name]; ok && dw.Name != "" {
			errs = append(errs, fmt.Errorf("deleted workload %q depends on itself", dw.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDesiredState, errors.Join(errs...))
	}
	return nil
}
