// Package refengine is an in-process engine implementing the
// engine.Handle contract for packaged models that carry a state-space
// dynamics block.
//
// It exists so the session wrapper, the CLI, and the tests can run
// end to end without a vendor-built runtime. It integrates the linear
// system x' = Ax + Bu, y = Cx + Du with a fixed-step RK4 (or Euler)
// scheme and reports divergence when the state leaves the representable
// range. Vendor runtimes plug in through their own engine.Opener; the
// two are interchangeable behind the Handle interface.
package refengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/san-kum/twinkit/internal/engine"
	"github.com/san-kum/twinkit/internal/model"
	"github.com/san-kum/twinkit/internal/twin"
)

const (
	defaultStepSize = 1e-3

	// State norm beyond which the integration is declared diverged.
	divergeLimit = 1e12
)

// Method selects the integration scheme.
type Method string

const (
	MethodRK4   Method = "rk4"
	MethodEuler Method = "euler"
)

// Engine is one in-process engine instance. It is not safe for
// concurrent use.
type Engine struct {
	info     engine.Info
	settings engine.Settings
	dyn      model.Dynamics
	method   Method

	instantiated bool
	initialized  bool
	closed       bool

	t      float64
	x      []float64
	u      []float64
	params twin.Values

	inputIndex map[string]int
	paramNames map[string]struct{}
}

// Opener returns an engine.Opener that opens packaged models with the
// given integration method.
func Opener(method Method) engine.Opener {
	return engine.OpenerFunc(func(path string) (engine.Handle, error) {
		m, err := model.Open(path)
		if err != nil {
			return nil, err
		}
		return New(m, method)
	})
}

// New builds an engine for an opened model. The model must carry a
// dynamics block.
func New(m *model.Model, method Method) (*Engine, error) {
	if m.Doc.Dynamics == nil {
		return nil, fmt.Errorf("model %s carries no in-process dynamics", m.Doc.Name)
	}
	if method == "" {
		method = MethodRK4
	}
	inputs, outputs, params := m.Doc.Variables()

	e := &Engine{
		info: engine.Info{
			ModelName:  m.Doc.Name,
			Version:    m.Doc.Version,
			Inputs:     inputs,
			Outputs:    outputs,
			Parameters: params,
		},
		settings: engine.Settings{
			StepSize:  m.Doc.Solver.StepSize,
			EndTime:   m.Doc.Solver.EndTime,
			Tolerance: m.Doc.Solver.Tolerance,
		},
		dyn:        *m.Doc.Dynamics,
		method:     method,
		inputIndex: make(map[string]int, len(inputs)),
		paramNames: make(map[string]struct{}, len(params)),
	}
	if e.settings.StepSize <= 0 {
		e.settings.StepSize = defaultStepSize
	}
	for i, v := range inputs {
		e.inputIndex[v.Name] = i
	}
	for _, v := range params {
		e.paramNames[v.Name] = struct{}{}
	}
	return e, nil
}

func (e *Engine) Info() engine.Info         { return e.info }
func (e *Engine) Settings() engine.Settings { return e.settings }

func (e *Engine) Instantiate() error {
	if e.closed {
		return fmt.Errorf("%w: engine closed", twin.ErrEngineFatal)
	}
	e.u = make([]float64, len(e.info.Inputs))
	for i, v := range e.info.Inputs {
		e.u[i] = v.Start
	}
	e.params = twin.StartValues(e.info.Parameters)
	e.instantiated = true
	return nil
}

func (e *Engine) Initialize() error {
	if !e.instantiated {
		return fmt.Errorf("%w: engine not instantiated", twin.ErrEngineFatal)
	}
	e.x = make([]float64, len(e.dyn.A))
	copy(e.x, e.dyn.X0)

	// Declared parameters map onto initial state entries in declaration
	// order; parameters beyond the state dimension are held but inert.
	for i, v := range e.info.Parameters {
		if i >= len(e.x) {
			break
		}
		e.x[i] = e.params[v.Name]
	}
	e.t = 0
	e.initialized = true
	return nil
}

func (e *Engine) Reset() error {
	if !e.instantiated {
		return fmt.Errorf("%w: engine not instantiated", twin.ErrEngineFatal)
	}
	e.initialized = false
	e.t = 0
	e.x = nil
	for i, v := range e.info.Inputs {
		e.u[i] = v.Start
	}
	e.params = twin.StartValues(e.info.Parameters)
	return nil
}

func (e *Engine) SetInput(name string, value float64) error {
	idx, ok := e.inputIndex[name]
	if !ok {
		return fmt.Errorf("%w: %s", twin.ErrUnknownVariable, name)
	}
	if !e.instantiated {
		return fmt.Errorf("%w: engine not instantiated", twin.ErrEngineFatal)
	}
	e.u[idx] = value
	return nil
}

func (e *Engine) SetParameter(name string, value float64) error {
	if _, ok := e.paramNames[name]; !ok {
		return fmt.Errorf("%w: %s", twin.ErrUnknownVariable, name)
	}
	if !e.instantiated {
		return fmt.Errorf("%w: engine not instantiated", twin.ErrEngineFatal)
	}
	e.params[name] = value
	return nil
}

func (e *Engine) Outputs() ([]float64, error) {
	if !e.initialized {
		return nil, fmt.Errorf("%w: engine not initialized", twin.ErrEngineFatal)
	}
	y := make([]float64, len(e.dyn.C))
	for i, row := range e.dyn.C {
		sum := 0.0
		for j, c := range row {
			sum += c * e.x[j]
		}
		if e.dyn.D != nil {
			for j, d := range e.dyn.D[i] {
				sum += d * e.u[j]
			}
		}
		y[i] = sum
	}
	return y, nil
}

func (e *Engine) Simulate(stopTime float64) error {
	if !e.initialized {
		return fmt.Errorf("%w: engine not initialized", twin.ErrEngineFatal)
	}
	if stopTime <= e.t {
		return fmt.Errorf("%w: stop time %g not after current time %g",
			twin.ErrEngineFatal, stopTime, e.t)
	}

	step := stepRK4
	if e.method == MethodEuler {
		step = stepEuler
	}

	h := e.settings.StepSize
	for e.t < stopTime {
		if remaining := stopTime - e.t; remaining < h {
			h = remaining
		}
		e.x = step(e.deriv, e.x, h)
		e.t += h
		if !stateValid(e.x) {
			return fmt.Errorf("%w: state left representable range at t=%g",
				twin.ErrDiverged, e.t)
		}
	}
	e.t = stopTime
	return nil
}

func (e *Engine) deriv(x []float64) []float64 {
	dx := make([]float64, len(x))
	for i, row := range e.dyn.A {
		sum := 0.0
		for j, a := range row {
			sum += a * x[j]
		}
		for j, b := range e.dyn.B[i] {
			sum += b * e.u[j]
		}
		dx[i] = sum
	}
	return dx
}

// FieldNames lists the outputs carrying field snapshots. Every output
// of an in-process model does: the snapshot is the state vector weighted
// by the output's C row.
func (e *Engine) FieldNames() []string {
	return twin.VarNames(e.info.Outputs)
}

// Field returns the per-state contribution of the named output,
// C[i][j] * x[j] for each state entry j.
func (e *Engine) Field(name string) ([]float64, error) {
	if !e.initialized {
		return nil, fmt.Errorf("%w: engine not initialized", twin.ErrEngineFatal)
	}
	for i, v := range e.info.Outputs {
		if v.Name != name {
			continue
		}
		snap := make([]float64, len(e.x))
		for j := range e.x {
			snap[j] = e.dyn.C[i][j] * e.x[j]
		}
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", twin.ErrUnknownVariable, name)
}

func (e *Engine) SaveState() ([]byte, error) {
	if !e.initialized {
		return nil, fmt.Errorf("%w: engine not initialized", twin.ErrEngineFatal)
	}
	var buf bytes.Buffer
	vec := make([]float64, 0, 1+len(e.x)+len(e.u))
	vec = append(vec, e.t)
	vec = append(vec, e.x...)
	vec = append(vec, e.u...)
	if err := binary.Write(&buf, binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) LoadState(data []byte) error {
	if !e.instantiated {
		return fmt.Errorf("%w: engine not instantiated", twin.ErrEngineFatal)
	}
	want := 1 + len(e.dyn.A) + len(e.info.Inputs)
	vec := make([]float64, want)
	if len(data) != want*8 {
		return fmt.Errorf("%w: state payload has %d bytes, want %d",
			twin.ErrIncompatibleState, len(data), want*8)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, vec); err != nil {
		return err
	}
	e.t = vec[0]
	e.x = make([]float64, len(e.dyn.A))
	copy(e.x, vec[1:1+len(e.x)])
	copy(e.u, vec[1+len(e.x):])
	e.initialized = true
	return nil
}

func (e *Engine) Close() error {
	e.closed = true
	e.instantiated = false
	e.initialized = false
	e.x = nil
	e.u = nil
	return nil
}

func stateValid(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > divergeLimit {
			return false
		}
	}
	return true
}
