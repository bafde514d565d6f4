package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// TimeColumn is the header of the implicit time column in CSV files.
const TimeColumn = "Time"

// ReadCSV parses a frame from CSV data. The first column must be the
// time column; remaining headers name the value columns. The parsed
// frame is validated, so a non-increasing time column is rejected here
// rather than at simulation time.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: empty input")
	}
	header := records[0]
	if len(header) == 0 || header[0] != TimeColumn {
		return nil, fmt.Errorf("csv: first column must be %q", TimeColumn)
	}

	f := &Frame{Columns: header[1:]}
	for i, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv: row %d has %d fields, want %d", i+1, len(record), len(header))
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("csv: row %d: bad time %q", i+1, record[0])
		}
		row := make([]float64, len(record)-1)
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("csv: row %d column %q: bad value %q", i+1, header[j+1], field)
			}
			row[j] = v
		}
		f.Times = append(f.Times, t)
		f.Rows = append(f.Rows, row)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadCSVFile reads a frame from the file at path.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSV writes the frame as CSV with a leading time column.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := append([]string{TimeColumn}, f.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range f.Rows {
		record := make([]string, 0, len(row)+1)
		record = append(record, strconv.FormatFloat(f.Times[i], 'f', 6, 64))
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the frame to the file at path.
func (f *Frame) WriteCSVFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return f.WriteCSV(file)
}
