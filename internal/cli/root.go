// Package cli implements the anvil command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command for the anvil CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "anvil",
		Short:        "anvil runs workloads in dependency order",
		Long:         "anvil is a workload agent. It starts and deletes workloads once the states of the workloads they depend on allow it.",
		SilenceUsage: true,
	}

	root.AddCommand(
		newAgentCmd(),
		newValidateCmd(),
	)

	return root
}
