package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"tsforecast/logging"
	"tsforecast/timeseries"
)

// NewSequentialDataset validates the configuration and computes the number
// of sample slots per series.
// covariates may be nil; otherwise covariates[i] holds the past covariates of targets[i].
//
// Without MaxSamplesPerSeries every target length is read once here. With it,
// no length is read and a series that is too short only fails when one of
// its samples is requested.
func NewSequentialDataset(targets, covariates []*timeseries.TimeSeries, cfg Config) (*SequentialDataset, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target series", ErrValidation)
	}
	if covariates != nil && len(covariates) != len(targets) {
		return nil, fmt.Errorf("%w: %d target series but %d covariate series",
			ErrValidation, len(targets), len(covariates))
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	for i, ts := range targets {
		if ts == nil {
			return nil, fmt.Errorf("%w: target series %d is nil", ErrValidation, i)
		}
		if covariates != nil && covariates[i] == nil {
			return nil, fmt.Errorf("%w: covariate series %d is nil", ErrValidation, i)
		}
	}

	var lengths []int
	if cfg.MaxSamplesPerSeries == 0 {
		lengths = make([]int, len(targets))
		for i, ts := range targets {
			lengths[i] = ts.Len()
		}
	}
	capacity, err := Capacity(lengths, cfg.Window, cfg.MaxSamplesPerSeries)
	if err != nil {
		return nil, err
	}

	if capacity > math.MaxInt/len(targets) {
		return nil, fmt.Errorf("%w: %d series of %d samples overflow the dataset length",
			ErrValidation, len(targets), capacity)
	}

	ds := &SequentialDataset{
		targets:    targets,
		covariates: covariates,
		window:     cfg.Window,
		capacity:   capacity,
		log:        logging.GetLog("dataset"),
	}
	ds.log.Debug("sequential dataset",
		"series", len(targets),
		"covariates", covariates != nil,
		"input_chunk_length", cfg.InputChunkLength,
		"output_chunk_length", cfg.OutputChunkLength,
		"capped", cfg.MaxSamplesPerSeries > 0,
		"capacity", capacity)
	return ds, nil
}

// Len returns the number of addressable samples: series count times capacity.
// With a sample cap this is not checked against the actual series lengths.
func (ds *SequentialDataset) Len() int { return len(ds.targets) * ds.capacity }

// Capacity returns the number of sample slots per series.
func (ds *SequentialDataset) Capacity() int { return ds.capacity }

// NumSeries returns the number of target series.
func (ds *SequentialDataset) NumSeries() int { return len(ds.targets) }

// Window returns the chunk lengths.
func (ds *SequentialDataset) Window() Window { return ds.window }

// HasCovariates reports whether samples carry a past covariate.
func (ds *SequentialDataset) HasCovariates() bool { return ds.covariates != nil }

// Get returns the sample at idx, idx in [0, Len()).
func (ds *SequentialDataset) Get(idx int) (*Sample, error) {
	if idx < 0 || idx >= ds.Len() {
		return nil, fmt.Errorf("%w: index %d, dataset length %d", ErrOutOfRange, idx, ds.Len())
	}

	tsIdx, offset, err := Locate(idx, ds.capacity, ds.window, func(i int) int { return ds.targets[i].Len() })
	if err != nil {
		return nil, err
	}
	target := ds.targets[tsIdx]
	icl, ocl := ds.window.InputChunkLength, ds.window.OutputChunkLength

	pastTarget, err := target.FromEnd(offset+icl, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: past target of series %d: %v", ErrOutOfRange, tsIdx, err)
	}
	// the most recent window ends with the series
	futureTo := offset - ocl
	futureTarget, err := target.FromEnd(offset, futureTo)
	if err != nil {
		return nil, fmt.Errorf("%w: future target of series %d: %v", ErrOutOfRange, tsIdx, err)
	}

	sample := &Sample{PastTarget: pastTarget, FutureTarget: futureTarget}
	if ds.covariates == nil {
		return sample, nil
	}

	covariate := ds.covariates[tsIdx]
	covOffset, err := CovariateOffset(target, covariate, offset, icl)
	if err != nil {
		return nil, fmt.Errorf("series %d, index %d: %w", tsIdx, idx, err)
	}
	sample.PastCovariate, err = covariate.FromEnd(covOffset+icl, covOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: past covariate of series %d: %v", ErrAlignment, tsIdx, err)
	}
	return sample, nil
}

// Indices returns a random permutation of [0, Len()). A zero seed uses the
// current time.
func (ds *SequentialDataset) Indices(seed uint64) []int {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return rng.Perm(ds.Len())
}
