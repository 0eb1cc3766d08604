package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrDiverged is returned when the reduced wave speed is not finite.
	ErrDiverged = errors.New("solver: solution diverged")
	// ErrAlreadyRun is returned by Run on a solver that has left the
	// Uninitialized phase.
	ErrAlreadyRun = errors.New("solver: run already started")
	// ErrGroupLimit is returned when the device cannot launch work groups of
	// two items, the smallest the reduction can use.
	ErrGroupLimit = errors.New("solver: device work-group limit below 2")
)

// SetupError reports a failure before stepping began: device acquisition,
// kernel compilation, buffer allocation or argument binding. Compilation
// failures wrap a *device.BuildError carrying the compiler log.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// DispatchError reports a failed launch, copy, read or argument binding
// during step Step (0 for the initial condition). No frame has been emitted
// for that step.
type DispatchError struct {
	Step  int
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("step %d: %s: %v", e.Step, e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
