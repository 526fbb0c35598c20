package main

import (
	"io"

	"tsforecast/filtering"
	"tsforecast/timeseries"
)

// CLI is the command line of tsforecast.
type CLI struct {
	Globals

	Dataset DatasetCmd `cmd:"" help:"Build a sequential training dataset and print its samples."`
	Filter  FilterCmd  `cmd:"" help:"Fit a Kalman filter to each target series and write the filtered series."`
}

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `short:"c" type:"existingfile" help:"YAML configuration file."`
	LogLevel string `name:"log-level" help:"TRACE, DEBUG, INFO, WARN or ERROR. Overrides the configuration."`

	stdout io.Writer `kong:"-"`
}

// DatasetCmd slices the target series into (past, future) training windows.
// Zero chunk lengths and a negative sample cap fall back to the configuration.
type DatasetCmd struct {
	Targets           []string `name:"target" required:"" help:"Target series CSV, repeatable."`
	Covariates        []string `name:"covariate" help:"Past covariate CSV, one per target, repeatable."`
	TimeColumn        string   `name:"time-column" help:"Name of the time column in the CSV files."`
	InputChunkLength  int      `name:"input-chunk-length" help:"Length of the past window."`
	OutputChunkLength int      `name:"output-chunk-length" help:"Length of the future window."`
	MaxSamples        int      `name:"max-samples-per-series" default:"-1" help:"Samples per series, 0 for the longest series."`
	Index             []int    `name:"index" help:"Sample indices to print."`
	Shuffle           uint64   `name:"shuffle" help:"Print the sample order for this seed."`
}

// FilterCmd fits and filters every target series on its own worker.
type FilterCmd struct {
	Targets    []string `name:"target" required:"" help:"Observation series CSV, repeatable."`
	Covariates []string `name:"covariate" help:"Input series CSV, one per target, repeatable."`
	TimeColumn string   `name:"time-column" help:"Name of the time column in the CSV files."`
	OutDir     string   `name:"out-dir" default:"." type:"path" help:"Directory for the <name>_filtered.csv outputs."`
	DimX       int      `name:"dim-x" help:"State dimension."`
	NumSamples int      `name:"num-samples" help:"Draws per step, 1 for the filtered mean."`
	Seed       uint64   `name:"seed" help:"Master seed for sampled outputs."`
	Workers    int      `name:"workers" help:"Parallel workers, defaults to the number of CPUs."`
	PrintModel bool     `name:"print-model" help:"Print the identified matrices."`
}

// filterJob is one target series (and its covariates) to fit and filter.
type filterJob struct {
	index     int
	path      string
	target    *timeseries.TimeSeries
	covariate *timeseries.TimeSeries
	seed      uint64
}

// filterResult holds the outcome of one filterJob.
type filterResult struct {
	index  int
	path   string
	model  *filtering.StateSpaceModel
	output *timeseries.TimeSeries
	err    error
}
