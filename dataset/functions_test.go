package dataset

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"tsforecast/timeseries"
)

// series returns a series whose column k at position i holds start+i + 100*k,
// timestamped start+i*step.
func series(t *testing.T, n, width int, start, step float64) *timeseries.TimeSeries {
	t.Helper()
	times := make([]float64, n)
	values := mat.NewDense(n, width, nil)
	for i := 0; i < n; i++ {
		times[i] = start + float64(i)*step
		for k := 0; k < width; k++ {
			values.Set(i, k, start+float64(i)*step+100*float64(k))
		}
	}
	ts, err := timeseries.New(times, values, nil)
	require.NoError(t, err)
	return ts
}

func column(m mat.Matrix) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, 0)
	}
	return out
}

func TestLocateProperties(t *testing.T) {
	for icl := 1; icl <= 4; icl++ {
		for ocl := 1; ocl <= 3; ocl++ {
			w := Window{InputChunkLength: icl, OutputChunkLength: ocl}
			lengths := []int{icl + ocl, icl + ocl + 3, icl + ocl + 11}
			lengthOf := func(i int) int { return lengths[i] }

			for _, maxSamples := range []int{0, 1, 5, 20} {
				capacity, err := Capacity(lengths, w, maxSamples)
				require.NoError(t, err)

				hits := make([]int, len(lengths))
				for idx := 0; idx < len(lengths)*capacity; idx++ {
					s, offset, err := Locate(idx, capacity, w, lengthOf)
					require.NoError(t, err)
					assert.Equal(t, idx/capacity, s)

					local := offset - ocl
					assert.GreaterOrEqual(t, local, 0)
					assert.Less(t, local, w.SamplesIn(lengths[s]))
					hits[s]++

					if idx%capacity == 0 {
						assert.Equal(t, ocl, offset, "slot 0 is the most recent forecast point")
					}
				}
				for s, n := range hits {
					assert.Equal(t, capacity, n, "series %d", s)
				}
			}
		}
	}
}

func TestLocateErrors(t *testing.T) {
	w := Window{InputChunkLength: 5, OutputChunkLength: 2}
	short := func(int) int { return 6 }

	_, _, err := Locate(0, 3, w, short)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, _, err = Locate(-1, 3, w, func(int) int { return 20 })
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, _, err = Locate(0, 0, w, func(int) int { return 20 })
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCapacity(t *testing.T) {
	w := Window{InputChunkLength: 5, OutputChunkLength: 2}

	c, err := Capacity([]int{20, 10}, w, 0)
	require.NoError(t, err)
	assert.Equal(t, 14, c)

	c, err = Capacity(nil, w, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c)

	_, err = Capacity([]int{6, 3}, w, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Capacity([]int{20}, w, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSingleSeries(t *testing.T) {
	ds, err := NewSequentialDataset([]*timeseries.TimeSeries{series(t, 20, 1, 0, 1)}, nil,
		Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}})
	require.NoError(t, err)
	assert.Equal(t, 14, ds.Capacity())
	assert.Equal(t, 14, ds.Len())

	s, err := ds.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{13, 14, 15, 16, 17}, column(s.PastTarget))
	assert.Equal(t, []float64{18, 19}, column(s.FutureTarget))
	assert.Nil(t, s.PastCovariate)

	s, err = ds.Get(13)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, column(s.PastTarget))
	assert.Equal(t, []float64{5, 6}, column(s.FutureTarget))

	_, err = ds.Get(14)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = ds.Get(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestWindowLengths(t *testing.T) {
	targets := []*timeseries.TimeSeries{series(t, 20, 2, 0, 1), series(t, 10, 2, 0, 1), series(t, 13, 2, 0, 1)}
	ds, err := NewSequentialDataset(targets, nil, Config{Window: Window{InputChunkLength: 4, OutputChunkLength: 3}})
	require.NoError(t, err)

	for idx := 0; idx < ds.Len(); idx++ {
		s, err := ds.Get(idx)
		require.NoError(t, err)
		r, c := s.PastTarget.Dims()
		assert.Equal(t, 4, r)
		assert.Equal(t, 2, c)
		r, _ = s.FutureTarget.Dims()
		assert.Equal(t, 3, r)
		// past and future are contiguous
		assert.Equal(t, s.PastTarget.At(3, 0)+1, s.FutureTarget.At(0, 0))
	}
}

func TestShorterSeriesWrap(t *testing.T) {
	targets := []*timeseries.TimeSeries{series(t, 20, 1, 0, 1), series(t, 10, 1, 0, 1)}
	ds, err := NewSequentialDataset(targets, nil, Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}})
	require.NoError(t, err)
	assert.Equal(t, 14, ds.Capacity())
	assert.Equal(t, 28, ds.Len())

	s, err := ds.Get(14)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, column(s.PastTarget))
	assert.Equal(t, []float64{8, 9}, column(s.FutureTarget))

	// 4 windows in the second series, slot 18 wraps to its most recent window
	wrapped, err := ds.Get(18)
	require.NoError(t, err)
	assert.Equal(t, column(s.PastTarget), column(wrapped.PastTarget))
}

func TestCapBeyondSeriesCapacity(t *testing.T) {
	ds, err := NewSequentialDataset([]*timeseries.TimeSeries{series(t, 10, 1, 0, 1)}, nil,
		Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}, MaxSamplesPerSeries: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())

	var firsts []float64
	for idx := 0; idx < ds.Len(); idx++ {
		s, err := ds.Get(idx)
		require.NoError(t, err)
		firsts = append(firsts, s.FutureTarget.At(0, 0))
	}
	assert.Equal(t, []float64{8, 7, 6, 5, 8}, firsts)
}

func TestCapWithTooShortSeries(t *testing.T) {
	targets := []*timeseries.TimeSeries{series(t, 20, 1, 0, 1), series(t, 6, 1, 0, 1)}
	ds, err := NewSequentialDataset(targets, nil,
		Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}, MaxSamplesPerSeries: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, ds.Len())

	_, err = ds.Get(2)
	assert.NoError(t, err)
	_, err = ds.Get(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestConstructionErrors(t *testing.T) {
	w := Window{InputChunkLength: 5, OutputChunkLength: 2}
	long := series(t, 20, 1, 0, 1)

	_, err := NewSequentialDataset([]*timeseries.TimeSeries{series(t, 6, 1, 0, 1)}, nil, Config{Window: w})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSequentialDataset([]*timeseries.TimeSeries{long}, []*timeseries.TimeSeries{long, long}, Config{Window: w})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSequentialDataset([]*timeseries.TimeSeries{long}, nil, Config{Window: Window{InputChunkLength: 0, OutputChunkLength: 2}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSequentialDataset([]*timeseries.TimeSeries{long}, nil, Config{Window: Window{InputChunkLength: 5, OutputChunkLength: -1}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewSequentialDataset(nil, nil, Config{Window: w})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCovariateAlignment(t *testing.T) {
	target := series(t, 20, 1, 0, 1)
	// starts 5 steps earlier and ends 2 steps earlier than the target
	covariate := series(t, 23, 2, -5, 1)
	ds, err := NewSequentialDataset([]*timeseries.TimeSeries{target}, []*timeseries.TimeSeries{covariate},
		Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}})
	require.NoError(t, err)
	assert.True(t, ds.HasCovariates())

	for idx := 0; idx < ds.Len(); idx++ {
		s, err := ds.Get(idx)
		require.NoError(t, err)
		r, c := s.PastCovariate.Dims()
		assert.Equal(t, 5, r)
		assert.Equal(t, 2, c)
		// covariate values equal their timestamps, so the windows share times
		assert.Equal(t, column(s.PastTarget), column(s.PastCovariate))
	}
}

func TestCovariateAlignmentErrors(t *testing.T) {
	w := Window{InputChunkLength: 5, OutputChunkLength: 2}
	target := series(t, 20, 1, 0, 1)

	cases := map[string]*timeseries.TimeSeries{
		"starts too late": series(t, 10, 1, 10, 1),
		"ends too early":  series(t, 11, 1, 0, 1),
		"other frequency": series(t, 20, 1, 0, 2),
		"off the grid":    series(t, 20, 1, 0.5, 1),
	}
	for name, covariate := range cases {
		t.Run(name, func(t *testing.T) {
			ds, err := NewSequentialDataset([]*timeseries.TimeSeries{target}, []*timeseries.TimeSeries{covariate}, Config{Window: w})
			require.NoError(t, err)

			var alignErr error
			for idx := 0; idx < ds.Len() && alignErr == nil; idx++ {
				_, alignErr = ds.Get(idx)
			}
			assert.ErrorIs(t, alignErr, ErrAlignment)
		})
	}
}

func TestCovariateOffset(t *testing.T) {
	target := series(t, 20, 1, 0, 1)
	covariate := series(t, 30, 1, -10, 1)

	// forecast point at time 18 sits at covariate position 28
	off, err := CovariateOffset(target, covariate, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, off)

	_, err = CovariateOffset(target, covariate, 0, 5)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestIndices(t *testing.T) {
	ds, err := NewSequentialDataset([]*timeseries.TimeSeries{series(t, 20, 1, 0, 1)}, nil,
		Config{Window: Window{InputChunkLength: 5, OutputChunkLength: 2}})
	require.NoError(t, err)

	perm := ds.Indices(7)
	assert.Len(t, perm, ds.Len())
	assert.Equal(t, perm, ds.Indices(7))
	assert.ElementsMatch(t, perm, ds.Indices(8))
}

func TestLengthOverflow(t *testing.T) {
	targets := []*timeseries.TimeSeries{series(t, 10, 1, 0, 1), series(t, 10, 1, 0, 1)}
	_, err := NewSequentialDataset(targets, nil,
		Config{Window: Window{InputChunkLength: 2, OutputChunkLength: 1}, MaxSamplesPerSeries: math.MaxInt})
	assert.ErrorIs(t, err, ErrValidation)

	ds, err := NewSequentialDataset(targets, nil,
		Config{Window: Window{InputChunkLength: 2, OutputChunkLength: 1}, MaxSamplesPerSeries: math.MaxInt / 2})
	require.NoError(t, err)
	assert.Positive(t, ds.Len())
}

func TestGetConcurrent(t *testing.T) {
	targets := []*timeseries.TimeSeries{series(t, 30, 1, 0, 1), series(t, 18, 1, 100, 1)}
	covariates := []*timeseries.TimeSeries{series(t, 40, 2, -5, 1), series(t, 30, 2, 90, 1)}
	ds, err := NewSequentialDataset(targets, covariates, Config{Window: Window{InputChunkLength: 4, OutputChunkLength: 2}})
	require.NoError(t, err)

	want := make([]*Sample, ds.Len())
	for idx := range want {
		want[idx], err = ds.Get(idx)
		require.NoError(t, err)
	}

	const workers = 8
	got := make([][]*Sample, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			got[w] = make([]*Sample, ds.Len())
			for idx := range got[w] {
				if got[w][idx], errs[w] = ds.Get(idx); errs[w] != nil {
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		require.NoError(t, errs[w])
		for idx, s := range got[w] {
			assert.True(t, mat.Equal(want[idx].PastTarget, s.PastTarget), "worker %d index %d", w, idx)
			assert.True(t, mat.Equal(want[idx].FutureTarget, s.FutureTarget), "worker %d index %d", w, idx)
			assert.True(t, mat.Equal(want[idx].PastCovariate, s.PastCovariate), "worker %d index %d", w, idx)
		}
	}
}
