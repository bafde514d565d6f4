package twin

import (
	"errors"
	"fmt"
)

// Domain errors for session and engine operations.
var (
	// ErrNotFound indicates the packaged model file does not exist.
	ErrNotFound = errors.New("twin: model file not found")

	// ErrIncompatibleVersion indicates the model was built for an
	// unsupported runtime version.
	ErrIncompatibleVersion = errors.New("twin: incompatible runtime version")

	// ErrInvalidState indicates an operation called out of lifecycle order.
	ErrInvalidState = errors.New("twin: operation not allowed in current session state")

	// ErrUnknownVariable indicates a name not in the declared variable lists.
	ErrUnknownVariable = errors.New("twin: unknown variable")

	// ErrInvalidArgument indicates a malformed argument (non-positive step
	// size, non-increasing time column, ...).
	ErrInvalidArgument = errors.New("twin: invalid argument")

	// ErrDiverged indicates the engine reported numerical divergence.
	ErrDiverged = errors.New("twin: simulation diverged")

	// ErrIncompatibleState indicates a state blob produced by a different
	// model.
	ErrIncompatibleState = errors.New("twin: state blob incompatible with model")

	// ErrEngineFatal indicates an unrecoverable engine fault. The session
	// transitions to Closed.
	ErrEngineFatal = errors.New("twin: fatal engine error")
)

// Error attaches session context to a domain error. Op is the session
// operation that failed, State the session state at call time, and Time
// the simulation time reached so far. Variable is set when a specific
// name triggered the failure.
type Error struct {
	Op       string
	State    string
	Variable string
	Time     float64
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s (state=%s, t=%g)", e.Op, e.State, e.Time)
	if e.Variable != "" {
		msg += fmt.Sprintf(" variable %q", e.Variable)
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
