package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no transition exists for the trigger in the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every guarded transition for the trigger refused
	ErrGuardFailed = errors.New("guard condition failed")
)
