// Package model reads and writes packaged twin model files.
//
// A packaged model (.twz) is a zip container holding a twin.yaml
// description: model identity, the minimum compatible runtime version,
// the declared input/output/parameter descriptors, solver defaults, and
// the state-space dynamics block consumed by the reference engine.
// Opening a model reads metadata only; no simulation structures are
// allocated.
package model

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/twinkit/internal/twin"
)

// DescriptionFile is the name of the metadata entry inside the container.
const DescriptionFile = "twin.yaml"

// Runtime version compatibility window. Models declaring an engine
// version outside [MinEngineVersion, RuntimeVersion] are rejected.
const (
	RuntimeVersion   = "2025.1"
	MinEngineVersion = "2023.2"
)

// Document is the parsed twin.yaml description.
type Document struct {
	Name       string     `yaml:"name"`
	Version    string     `yaml:"version"`
	Engine     string     `yaml:"engine"`
	Inputs     []VarDoc   `yaml:"inputs"`
	Outputs    []VarDoc   `yaml:"outputs"`
	Parameters []VarDoc   `yaml:"parameters"`
	Solver     SolverDoc  `yaml:"solver"`
	Dynamics   *Dynamics  `yaml:"dynamics,omitempty"`
}

// VarDoc is one variable descriptor as stored in twin.yaml.
type VarDoc struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type,omitempty"`
	Unit        string  `yaml:"unit,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Nominal     float64 `yaml:"nominal,omitempty"`
	Min         float64 `yaml:"min,omitempty"`
	Max         float64 `yaml:"max,omitempty"`
	Start       float64 `yaml:"start,omitempty"`
}

// SolverDoc carries the model's declared integration defaults.
type SolverDoc struct {
	StepSize  float64 `yaml:"step_size"`
	EndTime   float64 `yaml:"end_time"`
	Tolerance float64 `yaml:"tolerance"`
}

// Dynamics is a continuous linear time-invariant system
//
//	x' = A x + B u
//	y  = C x + D u
//
// used by the reference engine. Vendor-built models carry compiled
// binaries instead; this block is what makes a container runnable
// in-process.
type Dynamics struct {
	A  [][]float64 `yaml:"A"`
	B  [][]float64 `yaml:"B"`
	C  [][]float64 `yaml:"C"`
	D  [][]float64 `yaml:"D,omitempty"`
	X0 []float64   `yaml:"x0,omitempty"`
}

// Model is an opened packaged model.
type Model struct {
	Path string
	Doc  Document
}

// Open reads the metadata of a packaged model file.
func Open(path string) (*Model, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", twin.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open model %s: %w", path, err)
	}
	defer r.Close()

	var doc *Document
	for _, f := range r.File {
		if f.Name != DescriptionFile {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in %s: %w", DescriptionFile, path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", DescriptionFile, path, err)
		}
		doc = &Document{}
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse %s in %s: %w", DescriptionFile, path, err)
		}
		break
	}
	if doc == nil {
		return nil, fmt.Errorf("model %s: missing %s", path, DescriptionFile)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}

	return &Model{Path: path, Doc: *doc}, nil
}

// Write packages a description into a model file at path.
func Write(path string, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(DescriptionFile)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return zw.Close()
}

// Validate checks identity, version compatibility, and dynamics
// dimensions.
func (d Document) Validate() error {
	if d.Name == "" {
		return errors.New("model name is empty")
	}
	if err := checkEngineVersion(d.Engine); err != nil {
		return err
	}
	if d.Dynamics != nil {
		if err := d.Dynamics.validate(len(d.Inputs), len(d.Outputs)); err != nil {
			return err
		}
	}
	return nil
}

// Variables returns the declared descriptors converted to twin types.
func (d Document) Variables() (inputs, outputs, params []twin.Variable) {
	return toVars(d.Inputs), toVars(d.Outputs), toVars(d.Parameters)
}

func toVars(docs []VarDoc) []twin.Variable {
	vars := make([]twin.Variable, len(docs))
	for i, vd := range docs {
		t := twin.VarType(vd.Type)
		if t == "" {
			t = twin.TypeReal
		}
		vars[i] = twin.Variable{
			Name:        vd.Name,
			Type:        t,
			Unit:        vd.Unit,
			Description: vd.Description,
			Nominal:     vd.Nominal,
			Min:         vd.Min,
			Max:         vd.Max,
			Start:       vd.Start,
		}
	}
	return vars
}

func (dy *Dynamics) validate(nin, nout int) error {
	n := len(dy.A)
	if n == 0 {
		return errors.New("dynamics: matrix A is empty")
	}
	for i, row := range dy.A {
		if len(row) != n {
			return fmt.Errorf("dynamics: A row %d has %d columns, want %d", i, len(row), n)
		}
	}
	if len(dy.B) != n {
		return fmt.Errorf("dynamics: B has %d rows, want %d", len(dy.B), n)
	}
	for i, row := range dy.B {
		if len(row) != nin {
			return fmt.Errorf("dynamics: B row %d has %d columns, want %d", i, len(row), nin)
		}
	}
	if len(dy.C) != nout {
		return fmt.Errorf("dynamics: C has %d rows, want %d", len(dy.C), nout)
	}
	for i, row := range dy.C {
		if len(row) != n {
			return fmt.Errorf("dynamics: C row %d has %d columns, want %d", i, len(row), n)
		}
	}
	if dy.D != nil {
		if len(dy.D) != nout {
			return fmt.Errorf("dynamics: D has %d rows, want %d", len(dy.D), nout)
		}
		for i, row := range dy.D {
			if len(row) != nin {
				return fmt.Errorf("dynamics: D row %d has %d columns, want %d", i, len(row), nin)
			}
		}
	}
	if dy.X0 != nil && len(dy.X0) != n {
		return fmt.Errorf("dynamics: x0 has %d entries, want %d", len(dy.X0), n)
	}
	return nil
}

func checkEngineVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: model declares no engine version", twin.ErrIncompatibleVersion)
	}
	maj, min, err := parseVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %v", twin.ErrIncompatibleVersion, err)
	}
	loMaj, loMin, _ := parseVersion(MinEngineVersion)
	hiMaj, hiMin, _ := parseVersion(RuntimeVersion)
	if less(maj, min, loMaj, loMin) || less(hiMaj, hiMin, maj, min) {
		return fmt.Errorf("%w: model built for %s, supported %s..%s",
			twin.ErrIncompatibleVersion, v, MinEngineVersion, RuntimeVersion)
	}
	return nil
}

func parseVersion(v string) (maj, min int, err error) {
	parts := strings.SplitN(v, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	maj, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	return maj, min, nil
}

func less(aMaj, aMin, bMaj, bMin int) bool {
	if aMaj != bMaj {
		return aMaj < bMaj
	}
	return aMin < bMin
}
