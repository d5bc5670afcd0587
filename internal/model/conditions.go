package model

import "fmt"

// AddCondition gates the start of a workload on the state of one of its
// dependencies.
type AddCondition interface {
	FulfilledBy(state ExecutionState) bool
	addCondition()
}

// DeleteCondition gates the removal of a workload on the state of one of its
// dependencies.
type DeleteCondition interface {
	FulfilledBy(state ExecutionState) bool
	deleteCondition()
}

// AddCond is the set of add-conditions understood by the agent.
type AddCond string

// Add-condition constants.
const (
	AddCondRunning   AddCond = "ADD_COND_RUNNING"
	AddCondSucceeded AddCond = "ADD_COND_SUCCEEDED"
	AddCondFailed    AddCond = "ADD_COND_FAILED"
)

var _ AddCondition = AddCond("")

func (AddCond) addCondition() {}

// FulfilledBy reports whether the dependency state satisfies the condition.
func (c AddCond) FulfilledBy(state ExecutionState) bool {
	switch c {
	case AddCondRunning:
		return state == StateRunning
	case AddCondSucceeded:
		return state == StateSucceeded
	case AddCondFailed:
		return state == StateFailed
	default:
		return false
	}
}

// UnmarshalText rejects unknown add-condition names.
func (c *AddCond) UnmarshalText(text []byte) error {
	parsed, err := ParseAddCond(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseAddCond converts a condition name into an AddCond.
func ParseAddCond(s string) (AddCond, error) {
	switch c := AddCond(s); c {
	case AddCondRunning, AddCondSucceeded, AddCondFailed:
		return c, nil
	default:
		return "", fmt.Errorf("unknown add condition %q", s)
	}
}

// DeleteCond is the set of delete-conditions understood by the agent.
type DeleteCond string

// Delete-condition constants.
const (
	DeleteCondRunning              DeleteCond = "DEL_COND_RUNNING"
	DeleteCondNotPendingNorRunning DeleteCond = "DEL_COND_NOT_PENDING_NOR_RUNNING"
)

var _ DeleteCondition = DeleteCond("")

func (DeleteCond) deleteCondition() {}

// FulfilledBy reports whether the dependency state satisfies the condition.
func (c DeleteCond) FulfilledBy(state ExecutionState) bool {
	switch c {
	case DeleteCondRunning:
		return state == StateRunning
	case DeleteCondNotPendingNorRunning:
		return state != StatePending && state != StateRunning
	default:
		return false
	}
}

// UnmarshalText rejects unknown delete-condition names.
func (c *DeleteCond) UnmarshalText(text []byte) error {
	parsed, err := ParseDeleteCond(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDeleteCond converts a condition name into a DeleteCond.
func ParseDeleteCond(s string) (DeleteCond, error) {
	switch c := DeleteCond(s); c {
	case DeleteCondRunning, DeleteCondNotPendingNorRunning:
		return c, nil
	default:
		return "", fmt.Errorf("unknown delete condition %q", s)
	}
}
