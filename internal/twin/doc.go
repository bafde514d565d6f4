// Package twin provides the core value types shared by the twinkit
// packages.
//
// The package defines:
//
//   - [Variable]: static descriptor of a model input, output, or parameter
//   - [Values]: name-to-value mapping used for inputs and parameters
//   - the error taxonomy surfaced by session operations
//
// # Errors
//
// Every failure mode of a session maps onto one of the sentinel errors in
// this package (ErrInvalidState, ErrUnknownVariable, ...). Operations wrap
// the sentinel in a [*Error] carrying the offending operation, variable
// name, session state, and simulation time, so callers can both classify
// with errors.Is and inspect the context:
//
//	if errors.Is(err, twin.ErrDiverged) {
//	    // retry with adjusted parameters
//	}
package twin
