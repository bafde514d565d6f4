package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/twinkit/internal/twin"
)

func validDoc() Document {
	return Document{
		Name:    "thermal-rc",
		Version: "2.1.0",
		Engine:  "2024.2",
		Inputs: []VarDoc{
			{Name: "heat_flow", Unit: "W"},
		},
		Outputs: []VarDoc{
			{Name: "temperature", Unit: "K", Start: 300},
		},
		Parameters: []VarDoc{
			{Name: "capacitance", Unit: "J/K", Start: 1},
		},
		Solver: SolverDoc{StepSize: 0.01, EndTime: 60},
		Dynamics: &Dynamics{
			A:  [][]float64{{-0.5}},
			B:  [][]float64{{1}},
			C:  [][]float64{{1}},
			X0: []float64{300},
		},
	}
}

func TestWriteOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thermal.twz")
	require.NoError(t, Write(path, validDoc()))

	m, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "thermal-rc", m.Doc.Name)
	assert.Equal(t, "2.1.0", m.Doc.Version)
	assert.Equal(t, 0.01, m.Doc.Solver.StepSize)
	require.NotNil(t, m.Doc.Dynamics)
	assert.Equal(t, [][]float64{{-0.5}}, m.Doc.Dynamics.A)

	inputs, outputs, params := m.Doc.Variables()
	require.Len(t, inputs, 1)
	require.Len(t, outputs, 1)
	require.Len(t, params, 1)
	assert.Equal(t, "heat_flow", inputs[0].Name)
	assert.Equal(t, twin.TypeReal, inputs[0].Type, "empty type defaults to real")
	assert.Equal(t, 300.0, outputs[0].Start)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.twz"))
	require.ErrorIs(t, err, twin.ErrNotFound)
}

func TestOpenNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.twz")
	require.NoError(t, os.WriteFile(path, []byte("not a zip archive"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, twin.ErrNotFound)
}

func TestEngineVersionWindow(t *testing.T) {
	tests := []struct {
		engine string
		ok     bool
	}{
		{"2023.2", true},
		{"2024.1", true},
		{"2025.1", true},
		{"2023.1", false},
		{"2022.2", false},
		{"2025.2", false},
		{"2026.1", false},
		{"", false},
		{"banana", false},
	}
	for _, tt := range tests {
		t.Run("v="+tt.engine, func(t *testing.T) {
			doc := validDoc()
			doc.Engine = tt.engine
			err := doc.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, twin.ErrIncompatibleVersion)
			}
		})
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"empty name", func(d *Document) { d.Name = "" }},
		{"A not square", func(d *Document) { d.Dynamics.A = [][]float64{{1, 2}} }},
		{"B row count", func(d *Document) { d.Dynamics.B = [][]float64{{1}, {2}} }},
		{"B column count", func(d *Document) { d.Dynamics.B = [][]float64{{1, 2}} }},
		{"C row count", func(d *Document) { d.Dynamics.C = [][]float64{{1}, {1}} }},
		{"C column count", func(d *Document) { d.Dynamics.C = [][]float64{{1, 2}} }},
		{"D shape", func(d *Document) { d.Dynamics.D = [][]float64{{1, 2}} }},
		{"x0 length", func(d *Document) { d.Dynamics.X0 = []float64{1, 2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(&doc)
			assert.Error(t, doc.Validate())
		})
	}
}

func TestWriteRejectsInvalidDocument(t *testing.T) {
	doc := validDoc()
	doc.Name = ""
	path := filepath.Join(t.TempDir(), "bad.twz")
	require.Error(t, Write(path, doc))
}

func TestDocumentWithoutDynamicsIsValid(t *testing.T) {
	doc := validDoc()
	doc.Dynamics = nil
	assert.NoError(t, doc.Validate())
}
