package domain

import "fmt"

// ValidationError is returned when a module is invoked with bad parameters.
// It fails the run before any device command is attempted.
type ValidationError struct {
	Module string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid parameter %q: %s", e.Module, e.Field, e.Reason)
}

// StateError is returned when a transition is attempted out of a terminal
// module-run state. The run's persisted state is left untouched.
type StateError struct {
	RunID string
	From  Status
	Event string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("run %s: cannot %s from state %s", e.RunID, e.Event, e.From)
}

// RunNotFoundError is returned when a module run ID does not exist.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("module run not found: %s", e.RunID)
}

// UnknownModuleError is returned when no executor is registered for a module name.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("no executor registered for module %q", e.Module)
}
