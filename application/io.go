package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"tsforecast/dataset"
	"tsforecast/filtering"
	"tsforecast/timeseries"
)

// loadSeries loads every CSV file in paths.
func loadSeries(paths []string, timeColumn string) ([]*timeseries.TimeSeries, error) {
	out := make([]*timeseries.TimeSeries, len(paths))
	for i, path := range paths {
		ts, err := timeseries.LoadCSV(path, timeColumn)
		if err != nil {
			return nil, err
		}
		out[i] = ts
	}
	return out, nil
}

// outputPath maps data/a.csv to <dir>/a_filtered.csv.
func outputPath(dir, target string) string {
	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	return filepath.Join(dir, base+"_filtered.csv")
}

// PrintDatasetSummary prints the window, the per-series capacity and one
// row per target series.
func PrintDatasetSummary(w io.Writer, ds *dataset.SequentialDataset, names []string) {
	win := ds.Window()
	fmt.Fprintf(w, "\n=== Sequential Dataset ===\n")
	fmt.Fprintf(w, "input_chunk_length:  %d\n", win.InputChunkLength)
	fmt.Fprintf(w, "output_chunk_length: %d\n", win.OutputChunkLength)
	fmt.Fprintf(w, "samples per series:  %d\n", ds.Capacity())
	fmt.Fprintf(w, "covariates:          %t\n", ds.HasCovariates())
	fmt.Fprintf(w, "length:              %d\n\n", ds.Len())

	fmt.Fprintf(w, "%-6s%-32s%s\n", "i", "series", "indices")
	for i, name := range names {
		fmt.Fprintf(w, "%-6d%-32s[%d, %d)\n", i, name, i*ds.Capacity(), (i+1)*ds.Capacity())
	}
}

// PrintSample prints the windows of one dataset sample.
func PrintSample(w io.Writer, idx int, s *dataset.Sample) {
	fmt.Fprintf(w, "\n=== Sample %d ===\n", idx)
	fmt.Fprintf(w, "past target:\n%v\n", mat.Formatted(s.PastTarget, mat.Prefix(" ")))
	fmt.Fprintf(w, "future target:\n%v\n", mat.Formatted(s.FutureTarget, mat.Prefix(" ")))
	if s.PastCovariate != nil {
		fmt.Fprintf(w, "past covariate:\n%v\n", mat.Formatted(s.PastCovariate, mat.Prefix(" ")))
	}
}

// PrintOrder prints a sample order, twenty indices per line.
func PrintOrder(w io.Writer, order []int) {
	fmt.Fprintf(w, "\n=== Sample Order ===\n")
	for i, idx := range order {
		sep := " "
		if (i+1)%20 == 0 || i == len(order)-1 {
			sep = "\n"
		}
		fmt.Fprintf(w, "%d%s", idx, sep)
	}
}

// PrintModel prints the matrices of an identified model.
func PrintModel(w io.Writer, name string, m *filtering.StateSpaceModel) {
	fmt.Fprintf(w, "\n=== Model for %s ===\n", name)
	show := func(label string, a mat.Matrix) {
		fmt.Fprintf(w, "%s =\n%v\n", label, mat.Formatted(a, mat.Prefix(" "), mat.Squeeze()))
	}
	show("A", m.A)
	if m.B != nil {
		show("B", m.B)
	}
	show("C", m.C)
	if m.D != nil {
		show("D", m.D)
	}
	show("Q", m.Q)
	show("R", m.R)
}
