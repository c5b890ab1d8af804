package orchestrator

import (
	"errors"
	"fmt"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// FailureClass decides what the pipeline does after a stage error.
type FailureClass string

const (
	// FailureRecoverable retries within the cycle (bounded) and again on
	// the next cycle; the orchestration lifecycle continues.
	FailureRecoverable FailureClass = "RECOVERABLE"

	// FailureNonRecoverable stops the orchestration lifecycle; the process
	// stays up so operators can inspect state through the ops API.
	FailureNonRecoverable FailureClass = "NON_RECOVERABLE"

	// FailureEmergency additionally forces the System Risk Controller into
	// emergency lockdown before orchestration stops.
	FailureEmergency FailureClass = "EMERGENCY"
)

// StageError classifies a stage failure for the pipeline. Handlers wrap
// their errors with one of the constructors below; anything else is treated
// as recoverable.
type StageError struct {
	Stage domain.Stage
	Class FailureClass
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, e.Class, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Recoverable marks an error as retryable.
func Recoverable(stage domain.Stage, err error) *StageError {
	return &StageError{Stage: stage, Class: FailureRecoverable, Err: err}
}

// NonRecoverable marks an error as fatal to the orchestration lifecycle.
func NonRecoverable(stage domain.Stage, err error) *StageError {
	return &StageError{Stage: stage, Class: FailureNonRecoverable, Err: err}
}

// EmergencyStop marks an error that must lock the system down immediately.
func EmergencyStop(stage domain.Stage, err error) *StageError {
	return &StageError{Stage: stage, Class: FailureEmergency, Err: err}
}

// classify extracts the failure class from a handler error. Unclassified
// errors default to recoverable; a misbehaving handler then surfaces
// through the processing monitor's error rate instead of killing the loop.
func classify(err error) FailureClass {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	return FailureRecoverable
}
