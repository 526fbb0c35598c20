// Package timeseries holds the time-indexed series used by the dataset and
// filtering packages: values are kept row-per-timestep in gonum dense matrices.
package timeseries

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Simple struct for time series data
type TimeSeries struct {
	// Matrix for data, rows are time steps and columns are variables.
	// For a stochastic series this is the first realization.
	Y *mat.Dense
	// All realizations of a stochastic series, Samples[0] == Y.
	// Nil for a deterministic series.
	Samples []*mat.Dense
	// Time index, one strictly increasing entry per row
	Time []float64
	// List of variable Names
	VarNames []string
}

var (
	// ErrEmpty is returned when a series would have no rows or no columns.
	ErrEmpty = errors.New("timeseries: empty series")

	// ErrShape is returned when values, names or realizations disagree in shape.
	ErrShape = errors.New("timeseries: shape mismatch")

	// ErrTimeIndex is returned for a time index that is missing, unsorted
	// or does not match the number of rows.
	ErrTimeIndex = errors.New("timeseries: invalid time index")

	// ErrRange is returned when a positional slice falls outside the series.
	ErrRange = errors.New("timeseries: position out of range")
)

// regularTolerance is the relative tolerance used when comparing time steps.
const regularTolerance = 1e-9
