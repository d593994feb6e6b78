package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when the current state has no
	// transition for the fired trigger. Terminal states reject every
	// trigger this way.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every candidate transition for the
	// trigger was blocked by its guard.
	ErrGuardFailed = errors.New("guard condition failed")
)

// TransitionError reports a rejected Fire with the state and trigger that
// were involved. It unwraps to one of the sentinel errors above.
type TransitionError struct {
	From    State
	Trigger Trigger
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: trigger %s from state %s", e.Err, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
