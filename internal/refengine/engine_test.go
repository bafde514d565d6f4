package refengine

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/san-kum/twinkit/internal/model"
	"github.com/san-kum/twinkit/internal/twin"
)

// decayModel is x' = -x + u, y = x, x(0) = 1: without forcing the
// output decays as exp(-t).
func decayModel() *model.Model {
	return &model.Model{Doc: model.Document{
		Name:    "decay",
		Version: "1.0.0",
		Engine:  "2024.1",
		Inputs:  []model.VarDoc{{Name: "u"}},
		Outputs: []model.VarDoc{{Name: "y"}},
		Solver:  model.SolverDoc{StepSize: 1e-3, EndTime: 10},
		Dynamics: &model.Dynamics{
			A:  [][]float64{{-1}},
			B:  [][]float64{{1}},
			C:  [][]float64{{1}},
			X0: []float64{1},
		},
	}}
}

func started(t *testing.T, m *model.Model, method Method) *Engine {
	t.Helper()
	e, err := New(m, method)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Instantiate(); err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	return e
}

func output(t *testing.T, e *Engine) float64 {
	t.Helper()
	y, err := e.Outputs()
	if err != nil {
		t.Fatal(err)
	}
	return y[0]
}

func TestExponentialDecay(t *testing.T) {
	tests := []struct {
		method Method
		tol    float64
	}{
		{MethodRK4, 1e-9},
		{MethodEuler, 1e-2},
	}
	expected := math.Exp(-1.0)

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			e := started(t, decayModel(), tt.method)
			if err := e.Simulate(1.0); err != nil {
				t.Fatalf("simulate: %v", err)
			}
			if got := output(t, e); math.Abs(got-expected) > tt.tol {
				t.Errorf("y(1) = %g, want %g within %g", got, expected, tt.tol)
			}
		})
	}
}

func TestStepResponse(t *testing.T) {
	m := decayModel()
	m.Doc.Dynamics.X0 = []float64{0}
	e := started(t, m, MethodRK4)

	// Step input u=1 into x' = -x + u from rest: y(t) = 1 - exp(-t).
	if err := e.SetInput("u", 1); err != nil {
		t.Fatal(err)
	}
	if err := e.Simulate(2.0); err != nil {
		t.Fatal(err)
	}
	expected := 1 - math.Exp(-2.0)
	if got := output(t, e); math.Abs(got-expected) > 1e-9 {
		t.Errorf("y(2) = %g, want %g", got, expected)
	}
}

func TestPartialFinalStep(t *testing.T) {
	// Stop time that is not a multiple of the step size still lands
	// exactly on the stop time.
	e := started(t, decayModel(), MethodRK4)
	if err := e.Simulate(0.0015); err != nil {
		t.Fatal(err)
	}
	expected := math.Exp(-0.0015)
	if got := output(t, e); math.Abs(got-expected) > 1e-12 {
		t.Errorf("y = %g, want %g", got, expected)
	}
}

func TestSimulateBackwardRejected(t *testing.T) {
	e := started(t, decayModel(), MethodRK4)
	if err := e.Simulate(1.0); err != nil {
		t.Fatal(err)
	}
	if err := e.Simulate(0.5); !errors.Is(err, twin.ErrEngineFatal) {
		t.Fatalf("expected ErrEngineFatal, got %v", err)
	}
}

func TestDivergenceDetection(t *testing.T) {
	m := decayModel()
	m.Doc.Dynamics.A = [][]float64{{1}}
	e := started(t, m, MethodRK4)

	// x' = x grows as exp(t) and crosses the representable range well
	// before t=30.
	err := e.Simulate(30)
	if !errors.Is(err, twin.ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
}

func TestUnknownVariables(t *testing.T) {
	e := started(t, decayModel(), MethodRK4)
	if err := e.SetInput("v", 1); !errors.Is(err, twin.ErrUnknownVariable) {
		t.Errorf("SetInput: expected ErrUnknownVariable, got %v", err)
	}
	if err := e.SetParameter("gain", 1); !errors.Is(err, twin.ErrUnknownVariable) {
		t.Errorf("SetParameter: expected ErrUnknownVariable, got %v", err)
	}
}

func TestParameterSetsInitialState(t *testing.T) {
	m := decayModel()
	m.Doc.Parameters = []model.VarDoc{{Name: "y0", Start: 1}}
	e, err := New(m, MethodRK4)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Instantiate(); err != nil {
		t.Fatal(err)
	}
	if err := e.SetParameter("y0", 3); err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	if got := output(t, e); got != 3 {
		t.Errorf("y(0) = %g, want 3", got)
	}
}

func TestFieldSnapshot(t *testing.T) {
	e := started(t, decayModel(), MethodRK4)

	names := e.FieldNames()
	if len(names) != 1 || names[0] != "y" {
		t.Fatalf("field names %v", names)
	}
	snap, err := e.Field("y")
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	if len(snap) != 1 || snap[0] != 1 {
		t.Errorf("initial snapshot %v, want [1]", snap)
	}

	if err := e.Simulate(1.0); err != nil {
		t.Fatal(err)
	}
	snap, err = e.Field("y")
	if err != nil {
		t.Fatal(err)
	}
	if expected := math.Exp(-1.0); math.Abs(snap[0]-expected) > 1e-9 {
		t.Errorf("snapshot %v, want [%g]", snap, expected)
	}

	if _, err := e.Field("z"); !errors.Is(err, twin.ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestSaveLoadState(t *testing.T) {
	e := started(t, decayModel(), MethodRK4)
	if err := e.Simulate(0.5); err != nil {
		t.Fatal(err)
	}
	want := output(t, e)
	blob, err := e.SaveState()
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Simulate(1.0); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadState(blob); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := output(t, e); got != want {
		t.Errorf("restored output %g, want %g", got, want)
	}

	// Restored time continues from the capture point.
	expected := math.Exp(-1.0)
	if err := e.Simulate(1.0); err != nil {
		t.Fatal(err)
	}
	if got := output(t, e); math.Abs(got-expected) > 1e-9 {
		t.Errorf("y(1) after restore = %g, want %g", got, expected)
	}
}

func TestLoadStateWrongLength(t *testing.T) {
	e := started(t, decayModel(), MethodRK4)
	err := e.LoadState([]byte{1, 2, 3})
	if !errors.Is(err, twin.ErrIncompatibleState) {
		t.Fatalf("expected ErrIncompatibleState, got %v", err)
	}
}

func TestModelWithoutDynamics(t *testing.T) {
	m := decayModel()
	m.Doc.Dynamics = nil
	if _, err := New(m, MethodRK4); err == nil {
		t.Fatal("expected error for model without dynamics")
	}
}

func TestOpenerEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decay.twz")
	if err := model.Write(path, decayModel().Doc); err != nil {
		t.Fatalf("write model: %v", err)
	}

	h, err := Opener(MethodRK4).Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	if h.Info().ModelName != "decay" {
		t.Errorf("model name %q", h.Info().ModelName)
	}
	if err := h.Instantiate(); err != nil {
		t.Fatal(err)
	}
	if err := h.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := h.Simulate(1.0); err != nil {
		t.Fatal(err)
	}
	y, err := h.Outputs()
	if err != nil {
		t.Fatal(err)
	}
	if expected := math.Exp(-1.0); math.Abs(y[0]-expected) > 1e-9 {
		t.Errorf("y(1) = %g, want %g", y[0], expected)
	}
}

func TestOpenerMissingFile(t *testing.T) {
	_, err := Opener(MethodRK4).Open(filepath.Join(t.TempDir(), "nope.twz"))
	if !errors.Is(err, twin.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
