package errors

import (
	stdErrors "errors"
	"fmt"
)

// StageError records which pipeline stage failed. Stage errors are logged and
// reported, never propagated out of a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a StageError for the named stage
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// IsStageError reports whether err is a StageError (even when wrapped).
func IsStageError(err error) bool {
	var stageErr *StageError
	return stdErrors.As(err, &stageErr)
}

// StageOf returns the stage name of a wrapped StageError, or "" if err is not one.
func StageOf(err error) string {
	var stageErr *StageError
	if stdErrors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
