package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition indicates no row in the transition table.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthorized indicates the source may not request the transition.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrPreempted indicates an emergency stop landed during the transition.
	ErrPreempted = errors.New("preempted by emergency stop")
)

// UnrecoverableError marks a hook failure without safe fallback.
type UnrecoverableError struct {
	Err error
}

// Error implements error.
func (e *UnrecoverableError) Error() string {
	return "fatal: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Unrecoverable marks err so the machine moves to Faulted.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &UnrecoverableError{Err: err}
}

// IsUnrecoverable checks if err is marked by Unrecoverable.
func IsUnrecoverable(err error) bool {
	var ue *UnrecoverableError
	return errors.As(err, &ue)
}

// TransitionError describes a rejected or failed transition.
type TransitionError struct {
	From    State
	Trigger Trigger
	Err     error
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s: %v", e.Trigger, e.From, e.Err)
}

// Unwrap returns the cause.
func (e *TransitionError) Unwrap() error {
	return e.Err
}
