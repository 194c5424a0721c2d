package engine

import "fmt"

// MissingInputError is the first required input found absent during
// validation. Nothing has been created when it is returned.
type MissingInputError struct {
	Role string
	Path string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing %s input: %s", e.Role, e.Path)
}

// StageError records which stage failed. Err is the stage's own error,
// unchanged.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
