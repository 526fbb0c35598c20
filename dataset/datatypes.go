// Package dataset turns target series, and optionally past covariate series,
// into a randomly addressable collection of fixed-length training samples.
//
// Sample i of a dataset built from N series belongs to series i / capacity,
// where capacity is the number of slots every series gets. Within a series,
// slot 0 is the most recent window and older windows follow; series with
// fewer windows than slots repeat their windows.
package dataset

import (
	"errors"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"tsforecast/timeseries"
)

// Window holds the lengths of the past (input) and future (output) chunks.
type Window struct {
	InputChunkLength  int
	OutputChunkLength int
}

// Config is the dataset configuration.
type Config struct {
	Window
	// Upper bound on the samples drawn from one series. 0 means no bound:
	// the capacity is then derived from the longest target series.
	MaxSamplesPerSeries int
}

// Sample is one training tuple. The matrices are views on the source series.
type Sample struct {
	PastTarget   mat.Matrix // InputChunkLength x target width
	FutureTarget mat.Matrix // OutputChunkLength x target width
	// PastCovariate is InputChunkLength x covariate width, nil without covariates.
	PastCovariate mat.Matrix
}

// SequentialDataset produces (past target, future target, past covariate)
// samples. It is immutable after construction and safe for concurrent Get calls.
type SequentialDataset struct {
	targets    []*timeseries.TimeSeries
	covariates []*timeseries.TimeSeries
	window     Window
	capacity   int
	log        *slog.Logger
}

var (
	// ErrValidation reports a malformed configuration.
	ErrValidation = errors.New("dataset: invalid configuration")

	// ErrOutOfRange reports an index that does not resolve to a sample,
	// including indices that land on a series too short for the window.
	ErrOutOfRange = errors.New("dataset: index out of range")

	// ErrAlignment reports a covariate series that does not cover the
	// window required by a target sample.
	ErrAlignment = errors.New("dataset: covariate not aligned with target")
)
