// Package session mediates the lifecycle of one opened twin runtime
// instance.
//
// A [Session] owns exactly one engine handle and translates user-facing
// calls into the engine's fixed low-level call sequence while enforcing
// legal call ordering:
//
//	s, _ := session.Open(opener, "model.twz")
//	defer s.Close()
//	s.Instantiate()
//	s.Initialize(nil, twin.Values{"gain": 2})
//	s.Step(0.1, twin.Values{"force": 1})
//	out := s.Outputs()
//
// Every operation is a direct, blocking call into the engine. Sessions
// are not safe for concurrent use: the underlying engine state machine
// is not reentrant, so callers must serialize access per session.
//
// State-machine violations surface as twin.ErrInvalidState and never
// mutate the session. Engine-reported numerical failures are passed
// through verbatim with the variable name and simulation time attached;
// the session never retries on the caller's behalf.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/san-kum/twinkit/internal/engine"
	"github.com/san-kum/twinkit/internal/tabular"
	"github.com/san-kum/twinkit/internal/twin"
)

// Session is one opened, stateful instance of an engine handle.
type Session struct {
	id     string
	handle engine.Handle
	info   engine.Info
	opts   engine.Settings
	log    *slog.Logger

	state  State
	failed bool

	t       float64
	inputs  twin.Values
	params  twin.Values
	outputs twin.Values
}

// Option configures a session at open time.
type Option func(*Session)

// WithLogger routes session lifecycle logging to the given logger
// instead of discarding it.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Open loads the packaged model at path through the opener and returns a
// session in the Loaded state. Static variable descriptors and solver
// defaults are fetched once here and are read-only afterward.
func Open(opener engine.Opener, path string, opts ...Option) (*Session, error) {
	s := &Session{
		id:  uuid.NewString(),
		log: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
	}
	for _, opt := range opts {
		opt(s)
	}

	h, err := opener.Open(path)
	if err != nil {
		return nil, &twin.Error{Op: "Open", State: "unopened", Err: err}
	}
	s.handle = h
	s.info = h.Info()
	s.opts = h.Settings()
	s.state = Loaded
	s.log.Info("model loaded", "session", s.id, "model", s.info.ModelName,
		"inputs", len(s.info.Inputs), "outputs", len(s.info.Outputs),
		"parameters", len(s.info.Parameters))
	return s, nil
}

// ID returns the unique identifier of this session instance.
func (s *Session) ID() string { return s.id }

// ModelName returns the identifier of the loaded model.
func (s *Session) ModelName() string { return s.info.ModelName }

// Info returns the static model metadata fetched at load time.
func (s *Session) Info() engine.Info { return s.info }

// Settings returns the model's declared solver defaults.
func (s *Session) Settings() engine.Settings { return s.opts }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Failed reports whether the session was invalidated for further
// stepping by engine-reported divergence. A failed session can still be
// closed or returned to Initialized via Initialize or LoadState.
func (s *Session) Failed() bool { return s.failed }

// Time returns the simulation time reached so far.
func (s *Session) Time() float64 { return s.t }

// Outputs returns the current output values. Defined only after a
// successful Initialize; nil before that.
func (s *Session) Outputs() twin.Values { return s.outputs.Clone() }

// Inputs returns the input values applied most recently.
func (s *Session) Inputs() twin.Values { return s.inputs.Clone() }

// Parameters returns the parameter values applied at Initialize.
func (s *Session) Parameters() twin.Values { return s.params.Clone() }

// Instantiate allocates engine-side simulation structures.
func (s *Session) Instantiate() error {
	const op = "Instantiate"
	if s.state != Loaded {
		return s.fail(op, "", twin.ErrInvalidState)
	}
	if err := s.handle.Instantiate(); err != nil {
		return s.engineErr(op, "", err)
	}
	s.state = Instantiated
	s.log.Debug("instantiated", "session", s.id)
	return nil
}

// Initialize applies parameters and inputs, establishes time zero, and
// populates initial outputs. Names must reference declared variables;
// defaults are kept for names not supplied. Calling Initialize on an
// already initialized session resets the engine first.
func (s *Session) Initialize(inputs, parameters twin.Values) error {
	const op = "Initialize"
	if !s.state.oneOf(Instantiated, Initialized, Simulated) {
		return s.fail(op, "", twin.ErrInvalidState)
	}
	if name, ok := unknownName(inputs, s.info.Inputs); !ok {
		return s.fail(op, name, twin.ErrUnknownVariable)
	}
	if name, ok := unknownName(parameters, s.info.Parameters); !ok {
		return s.fail(op, name, twin.ErrUnknownVariable)
	}

	if s.state != Instantiated {
		if err := s.handle.Reset(); err != nil {
			return s.engineErr(op, "", err)
		}
	}
	for _, name := range parameters.Names() {
		if err := s.handle.SetParameter(name, parameters[name]); err != nil {
			return s.engineErr(op, name, err)
		}
	}
	for _, name := range inputs.Names() {
		if err := s.handle.SetInput(name, inputs[name]); err != nil {
			return s.engineErr(op, name, err)
		}
	}
	if err := s.handle.Initialize(); err != nil {
		return s.engineErr(op, "", err)
	}
	out, err := s.handle.Outputs()
	if err != nil {
		return s.engineErr(op, "", err)
	}

	s.t = 0
	s.failed = false
	s.inputs = mergeValues(twin.StartValues(s.info.Inputs), inputs)
	s.params = mergeValues(twin.StartValues(s.info.Parameters), parameters)
	s.outputs = s.outputValues(out)
	s.state = Initialized
	s.log.Debug("initialized", "session", s.id, "inputs", len(inputs), "parameters", len(parameters))
	return nil
}

// Step advances the simulation by dt. Optional inputs are applied at the
// current time before stepping; names not supplied keep their current
// values. On engine-reported divergence the session is marked failed and
// caller-visible time and outputs are left untouched.
func (s *Session) Step(dt float64, inputs twin.Values) error {
	const op = "Step"
	if !s.state.oneOf(Initialized, Simulated) || s.failed {
		return s.fail(op, "", twin.ErrInvalidState)
	}
	if dt <= 0 {
		return s.wrap(op, "", fmt.Errorf("%w: step size %g must be positive", twin.ErrInvalidArgument, dt))
	}
	if name, ok := unknownName(inputs, s.info.Inputs); !ok {
		return s.fail(op, name, twin.ErrUnknownVariable)
	}

	for _, name := range inputs.Names() {
		if err := s.handle.SetInput(name, inputs[name]); err != nil {
			return s.engineErr(op, name, err)
		}
	}
	if err := s.handle.Simulate(s.t + dt); err != nil {
		return s.engineErr(op, "", err)
	}
	out, err := s.handle.Outputs()
	if err != nil {
		return s.engineErr(op, "", err)
	}

	s.t += dt
	for name, v := range inputs {
		s.inputs[name] = v
	}
	s.outputs = s.outputValues(out)
	s.state = Simulated
	return nil
}

// SimulateBatch consumes a frame of historical inputs in time order: for
// each row it applies the row's inputs, advances the engine to the row's
// time, and records the outputs. The frame's time column must be
// strictly increasing and start at time zero, and the session itself
// must be at time zero (a session restored to a later time cannot
// consume a batch); its columns must name declared inputs. All of this
// is validated before the engine is invoked.
//
// A mid-batch engine failure aborts the run and returns the partial
// result frame together with the triggering error.
func (s *Session) SimulateBatch(frame *tabular.Frame) (*tabular.Frame, error) {
	const op = "SimulateBatch"
	if s.state != Initialized || s.failed {
		return nil, s.fail(op, "", twin.ErrInvalidState)
	}
	if frame == nil || frame.Len() == 0 {
		return nil, s.wrap(op, "", fmt.Errorf("%w: empty input frame", twin.ErrInvalidArgument))
	}
	if err := frame.Validate(); err != nil {
		return nil, s.wrap(op, "", err)
	}
	if t0 := frame.Times[0]; t0 != 0 {
		return nil, s.wrap(op, "", fmt.Errorf("%w: first row must be at time zero, got %g", twin.ErrInvalidArgument, t0))
	}
	if s.t != 0 {
		return nil, s.wrap(op, "", fmt.Errorf("%w: session already advanced to t=%g, batch requires time zero", twin.ErrInvalidArgument, s.t))
	}
	for _, col := range frame.Columns {
		if _, ok := twin.FindVar(s.info.Inputs, col); !ok {
			return nil, s.fail(op, col, twin.ErrUnknownVariable)
		}
	}

	result := tabular.NewFrame(twin.VarNames(s.info.Outputs))
	record := func(t float64) error {
		out, err := s.handle.Outputs()
		if err != nil {
			return err
		}
		s.outputs = s.outputValues(out)
		return result.AppendRow(t, out)
	}

	for i := 0; i < frame.Len(); i++ {
		rowTime := frame.Times[i]
		for j, col := range frame.Columns {
			if err := s.handle.SetInput(col, frame.Rows[i][j]); err != nil {
				return result, s.engineErr(op, col, err)
			}
			s.inputs[col] = frame.Rows[i][j]
		}
		if rowTime > s.t {
			if err := s.handle.Simulate(rowTime); err != nil {
				return result, s.engineErr(op, "", err)
			}
			s.t = rowTime
		}
		if err := record(rowTime); err != nil {
			return result, s.engineErr(op, "", err)
		}
	}
	s.state = Simulated
	s.log.Debug("batch complete", "session", s.id, "rows", result.Len(), "t", s.t)
	return result, nil
}

// FieldNames lists the outputs the engine exposes field snapshots for.
// Empty when the model carries no field data.
func (s *Session) FieldNames() []string {
	fp, ok := s.handle.(engine.FieldProvider)
	if !ok {
		return nil
	}
	return fp.FieldNames()
}

// Field returns the engine's current field snapshot for the named
// output. Requires a successful Initialize. Models without field data
// and names without a snapshot fail with twin.ErrUnknownVariable.
func (s *Session) Field(name string) ([]float64, error) {
	const op = "Field"
	if !s.state.oneOf(Initialized, Simulated) || s.failed {
		return nil, s.fail(op, name, twin.ErrInvalidState)
	}
	fp, ok := s.handle.(engine.FieldProvider)
	if !ok {
		return nil, s.fail(op, name, twin.ErrUnknownVariable)
	}
	snap, err := fp.Field(name)
	if err != nil {
		return nil, s.engineErr(op, name, err)
	}
	return snap, nil
}

// SaveState captures the opaque engine state at the current simulation
// time, tagged with the originating model identifier.
func (s *Session) SaveState() ([]byte, error) {
	const op = "SaveState"
	if !s.state.oneOf(Initialized, Simulated) || s.failed {
		return nil, s.fail(op, "", twin.ErrInvalidState)
	}
	payload, err := s.handle.SaveState()
	if err != nil {
		return nil, s.engineErr(op, "", err)
	}
	blob, err := encodeBlob(blobHeader{
		Model:        s.info.ModelName,
		ModelVersion: s.info.Version,
		SessionID:    s.id,
		Time:         s.t,
		Inputs:       s.inputs,
		Parameters:   s.params,
		Outputs:      s.outputs,
	}, payload)
	if err != nil {
		return nil, s.wrap(op, "", err)
	}
	return blob, nil
}

// LoadState restores a state previously captured by SaveState on a
// session of the same model. On success the session is Initialized at
// the captured time with the captured outputs. Blobs from a different
// model fail with twin.ErrIncompatibleState without touching the engine.
func (s *Session) LoadState(blob []byte) error {
	const op = "LoadState"
	if !s.state.oneOf(Instantiated, Initialized, Simulated) {
		return s.fail(op, "", twin.ErrInvalidState)
	}
	h, payload, err := decodeBlob(blob)
	if err != nil {
		return s.wrap(op, "", err)
	}
	if h.Model != s.info.ModelName || h.ModelVersion != s.info.Version {
		return s.wrap(op, "", fmt.Errorf("%w: blob from model %s %s, session has %s %s",
			twin.ErrIncompatibleState, h.Model, h.ModelVersion, s.info.ModelName, s.info.Version))
	}
	if err := s.handle.LoadState(payload); err != nil {
		return s.engineErr(op, "", err)
	}
	out, err := s.handle.Outputs()
	if err != nil {
		return s.engineErr(op, "", err)
	}

	s.t = h.Time
	s.failed = false
	s.inputs = mergeValues(twin.StartValues(s.info.Inputs), h.Inputs)
	s.params = mergeValues(twin.StartValues(s.info.Parameters), h.Parameters)
	s.outputs = s.outputValues(out)
	s.state = Initialized
	s.log.Debug("state loaded", "session", s.id, "t", s.t, "from", h.SessionID)
	return nil
}

// Close releases engine resources. Close is idempotent: closing a closed
// session is a no-op.
func (s *Session) Close() error {
	if s.state == Closed {
		return nil
	}
	err := s.handle.Close()
	s.state = Closed
	s.log.Debug("closed", "session", s.id, "t", s.t)
	if err != nil {
		return s.wrap("Close", "", err)
	}
	return nil
}

func (s *Session) outputValues(out []float64) twin.Values {
	vals := make(twin.Values, len(out))
	for i, v := range s.info.Outputs {
		if i < len(out) {
			vals[v.Name] = out[i]
		}
	}
	return vals
}

// engineErr classifies an error returned by the engine. Divergence marks
// the session failed; fatal engine errors close it. Caller-visible time
// and outputs are never mutated on the error path.
func (s *Session) engineErr(op, variable string, err error) error {
	switch {
	case errors.Is(err, twin.ErrDiverged):
		s.failed = true
		s.log.Warn("simulation diverged", "session", s.id, "t", s.t, "op", op)
	case errors.Is(err, twin.ErrEngineFatal):
		s.log.Error("fatal engine error", "session", s.id, "t", s.t, "op", op, "err", err)
		_ = s.handle.Close()
		s.state = Closed
	}
	return s.wrap(op, variable, err)
}

func (s *Session) fail(op, variable string, sentinel error) error {
	return s.wrap(op, variable, sentinel)
}

func (s *Session) wrap(op, variable string, err error) error {
	return &twin.Error{Op: op, State: s.state.String(), Variable: variable, Time: s.t, Err: err}
}

// unknownName reports the first name in vals that is not declared in
// vars. ok is true when every name is declared.
func unknownName(vals twin.Values, vars []twin.Variable) (name string, ok bool) {
	for _, n := range vals.Names() {
		if _, found := twin.FindVar(vars, n); !found {
			return n, false
		}
	}
	return "", true
}

func mergeValues(base, override twin.Values) twin.Values {
	merged := base.Clone()
	if merged == nil {
		merged = twin.Values{}
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
