package tabular

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/san-kum/twinkit/internal/twin"
)

func TestReadCSV(t *testing.T) {
	data := "Time,force,damping\n0,1.5,0.1\n0.5,2.0,0.1\n1,2.5,0.2\n"
	f, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if f.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", f.Len())
	}
	if len(f.Columns) != 2 || f.Columns[0] != "force" || f.Columns[1] != "damping" {
		t.Errorf("unexpected columns %v", f.Columns)
	}
	if f.Times[1] != 0.5 {
		t.Errorf("expected time 0.5, got %g", f.Times[1])
	}
	if f.Rows[2][0] != 2.5 {
		t.Errorf("expected force 2.5, got %g", f.Rows[2][0])
	}
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing time header", "t,force\n0,1\n"},
		{"empty", ""},
		{"non numeric value", "Time,force\n0,abc\n"},
		{"non numeric time", "Time,force\nzero,1\n"},
		{"ragged row", "Time,force,damping\n0,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestReadCSVRejectsNonIncreasingTime(t *testing.T) {
	data := "Time,force\n0,1\n1,2\n1,3\n"
	_, err := ReadCSV(strings.NewReader(data))
	if !errors.Is(err, twin.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	f := NewFrame([]string{"force"})
	_ = f.AppendRow(0, []float64{1.25})
	_ = f.AppendRow(0.5, []float64{-3})

	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if back.Len() != f.Len() {
		t.Fatalf("expected %d rows, got %d", f.Len(), back.Len())
	}
	for i := range f.Times {
		if back.Times[i] != f.Times[i] {
			t.Errorf("row %d: time %g, want %g", i, back.Times[i], f.Times[i])
		}
		if back.Rows[i][0] != f.Rows[i][0] {
			t.Errorf("row %d: value %g, want %g", i, back.Rows[i][0], f.Rows[i][0])
		}
	}
}
