package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV loads a CSV file into a TimeSeries.
// See ReadCSV for the meaning of timeColumn.
func LoadCSV(path string, timeColumn string) (*TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ts, err := ReadCSV(f, timeColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ts, nil
}

// ReadCSV reads a header row followed by numeric rows.
// When timeColumn names a header column, that column becomes the time index:
// it may hold numbers, RFC3339 timestamps or 2006-01-02 dates (stored as Unix
// seconds). Otherwise the time index is 0,1,2,...
func ReadCSV(rd io.Reader, timeColumn string) (*TimeSeries, error) {
	r := csv.NewReader(rd)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrEmpty)
	}

	timeIdx := -1
	if timeColumn != "" {
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), timeColumn) {
				timeIdx = j
				break
			}
		}
		if timeIdx < 0 {
			return nil, fmt.Errorf("%w: time column %q not found", ErrTimeIndex, timeColumn)
		}
	}

	names := make([]string, 0, len(header))
	for j, h := range header {
		if j != timeIdx {
			names = append(names, strings.TrimSpace(h))
		}
	}
	K := len(names)
	if K == 0 {
		return nil, fmt.Errorf("%w: no value columns", ErrEmpty)
	}

	var (
		data  []float64 // flat data for mat.Dense
		times []float64 // time index
		row   int       // row counter
	)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err) // +2 for header + 1-based
		}

		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", row+2, len(header), len(record))
		}

		t := float64(row)
		for j, s := range record {
			if j == timeIdx {
				t, err = parseTime(s)
				if err != nil {
					return nil, fmt.Errorf("parse time at row %d (%q): %w", row+2, s, err)
				}
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("parse float at row %d col %d (%q): %w", row+2, j+1, s, err)
			}
			data = append(data, v)
		}
		times = append(times, t)
		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrEmpty)
	}
	return New(times, mat.NewDense(row, K, data), names)
}

func parseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return float64(t.Unix()), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, err
	}
	return float64(t.Unix()), nil
}

// WriteCSV writes the series with a leading "time" column. A stochastic
// series gets one column per variable and realization, named <var>_s<k>.
func WriteCSV(w io.Writer, ts *TimeSeries) error {
	writer := csv.NewWriter(w)

	realizations := ts.Samples
	if ts.IsDeterministic() {
		realizations = []*mat.Dense{ts.Y}
	}

	header := []string{"time"}
	for _, name := range ts.VarNames {
		if len(realizations) == 1 {
			header = append(header, name)
			continue
		}
		for s := range realizations {
			header = append(header, fmt.Sprintf("%s_s%d", name, s))
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for t := 0; t < ts.Len(); t++ {
		record[0] = strconv.FormatFloat(ts.Time[t], 'g', -1, 64)
		col := 1
		for k := range ts.VarNames {
			for _, m := range realizations {
				record[col] = strconv.FormatFloat(m.At(t, k), 'f', 6, 64)
				col++
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the series to path, see WriteCSV.
func SaveCSV(path string, ts *TimeSeries) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteCSV(file, ts)
}
