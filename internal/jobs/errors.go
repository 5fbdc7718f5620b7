package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrInput         = errors.New("invalid input")
	ErrToolFailure   = errors.New("media tool failure")
	ErrTranscription = errors.New("transcription failure")
	ErrNotFound      = errors.New("job not found")
	ErrNotReady      = errors.New("job not finished")
	ErrJobFailed     = errors.New("job failed")
	ErrQueueFull     = errors.New("job queue full")
	ErrTooLarge      = errors.New("upload too large")

	// ErrShuttingDown is returned by Enqueue once the pool has stopped and is
	// recorded on jobs still queued at that point.
	ErrShuttingDown = errors.New("service shut down before the job started")

	// ErrInvalidTransition is returned by Registry.Update when a mutation
	// would break the job state machine. The stored record is left untouched.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// StageError records which pipeline stage failed and how. errors.Is matches
// both the failure kind (ErrToolFailure, ErrTranscription) and the cause.
type StageError struct {
	Stage Status
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
