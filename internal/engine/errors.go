package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady         = errors.New("estimate is not ready for submission")
	ErrAlreadySubmitted = errors.New("estimate already submitted")
)

// UnknownStepError means the step id is not in the catalog.
type UnknownStepError struct {
	StepID string
}

func (e UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step: %s", e.StepID)
}

// StepNotActiveError means the step is skipped for the current record.
type StepNotActiveError struct {
	StepID string
}

func (e StepNotActiveError) Error() string {
	return fmt.Sprintf("step is currently skipped: %s", e.StepID)
}
