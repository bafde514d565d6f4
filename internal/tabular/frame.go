// Package tabular provides time-indexed tabular data for batch
// simulation: a [Frame] holds one column per variable keyed by a strictly
// increasing time column, and converts to and from CSV.
package tabular

import (
	"fmt"

	"github.com/san-kum/twinkit/internal/twin"
)

// Frame is an ordered sequence of (time, vector) rows. Row order is
// simulation time order and the time column is strictly increasing.
type Frame struct {
	Columns []string
	Times   []float64
	Rows    [][]float64
}

// NewFrame returns an empty frame with the given value columns (the time
// column is implicit).
func NewFrame(columns []string) *Frame {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Frame{Columns: cols}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Times) }

// AppendRow adds a row at time t. The time must be strictly greater than
// the last appended time and the row length must match the columns.
func (f *Frame) AppendRow(t float64, values []float64) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("%w: row has %d values, frame has %d columns",
			twin.ErrInvalidArgument, len(values), len(f.Columns))
	}
	if n := len(f.Times); n > 0 && t <= f.Times[n-1] {
		return fmt.Errorf("%w: time %g not greater than previous %g",
			twin.ErrInvalidArgument, t, f.Times[n-1])
	}
	row := make([]float64, len(values))
	copy(row, values)
	f.Times = append(f.Times, t)
	f.Rows = append(f.Rows, row)
	return nil
}

// Row returns the values of row i as a name-to-value mapping.
func (f *Frame) Row(i int) twin.Values {
	vals := make(twin.Values, len(f.Columns))
	for j, name := range f.Columns {
		vals[name] = f.Rows[i][j]
	}
	return vals
}

// Validate checks that the time column is strictly increasing and every
// row matches the column count. Frames built through AppendRow always
// pass; frames assembled directly or read from external data may not.
func (f *Frame) Validate() error {
	if len(f.Rows) != len(f.Times) {
		return fmt.Errorf("%w: %d rows for %d time points",
			twin.ErrInvalidArgument, len(f.Rows), len(f.Times))
	}
	for i, row := range f.Rows {
		if len(row) != len(f.Columns) {
			return fmt.Errorf("%w: row %d has %d values, frame has %d columns",
				twin.ErrInvalidArgument, i, len(row), len(f.Columns))
		}
	}
	for i := 1; i < len(f.Times); i++ {
		if f.Times[i] <= f.Times[i-1] {
			return fmt.Errorf("%w: time column not strictly increasing at row %d (%g after %g)",
				twin.ErrInvalidArgument, i, f.Times[i], f.Times[i-1])
		}
	}
	return nil
}

// Column returns the values of the named column, or nil if the column
// does not exist.
func (f *Frame) Column(name string) []float64 {
	for j, col := range f.Columns {
		if col != name {
			continue
		}
		out := make([]float64, len(f.Rows))
		for i, row := range f.Rows {
			out[i] = row[j]
		}
		return out
	}
	return nil
}
