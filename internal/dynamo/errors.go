package dynamo

import "errors"

// Domain errors for simulation and event registration.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the simulation became numerically unstable.
	ErrUnstable = errors.New("dynamo: simulation unstable (state diverged)")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")

	// ErrDimensionMismatch indicates mismatched state/system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrUnsupportedPrecision indicates a precision that is unknown or not
	// available at runtime.
	ErrUnsupportedPrecision = errors.New("dynamo: unsupported precision")

	// ErrBadTrigger indicates a trigger expression that failed to parse or
	// reference resolution at registration time.
	ErrBadTrigger = errors.New("dynamo: malformed trigger expression")

	// ErrBadDescriptor indicates an event descriptor rejected at registration.
	ErrBadDescriptor = errors.New("dynamo: invalid event descriptor")

	// ErrUnknownEvent indicates an event id with no registered descriptor.
	ErrUnknownEvent = errors.New("dynamo: unknown event id")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
