package workload

import "github.com/seantiz/anvil/internal/model"

// CommandKind distinguishes the commands an execution task understands.
type CommandKind string

const (
	// CommandUpdate replaces the running instance with a new spec.
	CommandUpdate CommandKind = "update"
	// CommandStop ends the workload.
	CommandStop CommandKind = "stop"
)

// Command is a message from a workload handle to its execution task.
type Command struct {
	Kind CommandKind
	Spec model.WorkloadSpec
	// ControlInterfacePath is empty when no control interface is bound.
	ControlInterfacePath string
}

// UpdateCommand builds an update carrying spec and the access path of the
// control interface bound to it.
func UpdateCommand(spec model.WorkloadSpec, controlInterfacePath string) Command {
	return Command{Kind: CommandUpdate, Spec: spec, ControlInterfacePath: controlInterfacePath}
}

// StopCommand builds a stop command.
func StopCommand() Command {
	return Command{Kind: CommandStop}
}
