package statecluster

import (
	"errors"
	"fmt"
)

// Construction errors.
var (
	ErrMissingField        = errors.New("required field is missing")
	ErrDuplicateTransition = errors.New("duplicate transition")
	ErrEmptySet            = errors.New("empty set")
	ErrSetTooLarge         = errors.New("event set too large")
	ErrUnknownInitialState = errors.New("unknown initial state")
	ErrTerminalState       = errors.New("transition targets a terminal state")
)

// Lifecycle and runtime errors.
var (
	ErrAlreadyRunning = errors.New("worker already running")
	ErrNotRunning     = errors.New("worker not running")
	ErrForeignState   = errors.New("saved state belongs to a different cluster")
	ErrStateShape     = errors.New("saved state does not match cluster cores")
	ErrUnknownState   = errors.New("unknown state")
)

// BuildError reports a construction failure of one core of a cluster.
type BuildError struct {
	Core int
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("core %d: %v", e.Core, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
