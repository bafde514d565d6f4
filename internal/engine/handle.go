// Package engine defines the low-level call surface of a twin runtime.
//
// A [Handle] is one opened engine instance for one packaged model. The
// call surface is fixed by the runtime contract; the session wrapper in
// internal/session enforces legal call ordering on top of it and is the
// intended entry point for callers. Handles are not safe for concurrent
// use; a handle belongs to exactly one session.
package engine

import "github.com/san-kum/twinkit/internal/twin"

// Info is the static metadata of an opened model, fetched once at load
// time.
type Info struct {
	ModelName  string
	Version    string
	Inputs     []twin.Variable
	Outputs    []twin.Variable
	Parameters []twin.Variable
}

// Settings are the solver defaults declared by the model.
type Settings struct {
	StepSize  float64
	EndTime   float64
	Tolerance float64
}

// Handle is an opened engine instance. Calls are synchronous and
// blocking; a call returns only once the engine has completed it.
//
// Engine-reported numerical divergence surfaces as an error wrapping
// twin.ErrDiverged. Unrecoverable faults wrap twin.ErrEngineFatal; after
// a fatal error only Close may be called.
type Handle interface {
	// Info returns the static model metadata.
	Info() Info

	// Settings returns the model's declared solver defaults.
	Settings() Settings

	// Instantiate allocates engine-side simulation structures.
	Instantiate() error

	// Initialize establishes time zero and computes initial outputs from
	// the currently applied inputs and parameters.
	Initialize() error

	// Reset returns an initialized engine to its instantiated state so it
	// can be initialized again with different parameters.
	Reset() error

	// SetInput applies one input value. Valid from instantiation onward.
	SetInput(name string, value float64) error

	// SetParameter applies one parameter value. Parameters take effect at
	// the next Initialize.
	SetParameter(name string, value float64) error

	// Outputs returns the current output vector in declaration order.
	// Defined only after a successful Initialize.
	Outputs() ([]float64, error)

	// Simulate advances the engine to the given absolute stop time.
	Simulate(stopTime float64) error

	// SaveState captures the opaque engine-internal state.
	SaveState() ([]byte, error)

	// LoadState restores a state previously captured by SaveState on a
	// handle of the same model.
	LoadState(data []byte) error

	// Close releases engine resources. Close is idempotent.
	Close() error
}

// FieldProvider is an optional capability of a Handle. Models built
// from reduced-order field data expose, per output, a snapshot of the
// underlying field alongside the scalar output value.
type FieldProvider interface {
	// FieldNames lists the outputs that carry field snapshots.
	FieldNames() []string

	// Field returns the current field snapshot of the named output.
	// Defined only after a successful Initialize.
	Field(name string) ([]float64, error)
}

// Opener opens a packaged model file and returns a handle to it. The
// session wrapper takes an Opener so tests can substitute a fake engine.
type Opener interface {
	Open(path string) (Handle, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Handle, error)

func (f OpenerFunc) Open(path string) (Handle, error) { return f(path) }
