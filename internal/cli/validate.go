package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/anvil/internal/manifest"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/scheduler"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Check a manifest and show which workloads would start at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			ready, waiting := scheduler.SplitWorkloadsToReadyAndWaiting(ds.Workloads)
			readyDeleted, waitingDeleted := scheduler.SplitDeletedWorkloadsToReadyAndWaiting(ds.Deleted)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Manifest: %s\n", args[0])
			fmt.Fprintf(out, "  Workloads: %d (%d ready, %d waiting)\n", len(ds.Workloads), len(ready), len(waiting))
			for _, w := range ready {
				fmt.Fprintf(out, "    - %s: start\n", w.Name)
			}
			for _, w := range waiting {
				fmt.Fprintf(out, "    - %s: wait for %s\n", w.Name, describe(w.Dependencies))
			}
			fmt.Fprintf(out, "  Deleted:   %d (%d ready, %d waiting)\n", len(ds.Deleted), len(readyDeleted), len(waitingDeleted))
			for _, dw := range readyDeleted {
				fmt.Fprintf(out, "    - %s: delete\n", dw.Name)
			}
			for _, dw := range waitingDeleted {
				fmt.Fprintf(out, "    - %s: wait for %s\n", dw.Name, describe(dw.Dependencies))
			}
			return nil
		},
	}
}

// describe renders dependencies as "db=ADD_COND_RUNNING, ..." in name order.
func describe[C ~string](deps map[model.WorkloadName]C) string {
	names := make([]model.WorkloadName, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, deps[name]))
	}
	return strings.Join(parts, ", ")
}
