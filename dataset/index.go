package dataset

import "fmt"

// Validate checks that both chunk lengths are positive.
func (w Window) Validate() error {
	if w.InputChunkLength <= 0 {
		return fmt.Errorf("%w: input_chunk_length must be > 0, got %d", ErrValidation, w.InputChunkLength)
	}
	if w.OutputChunkLength <= 0 {
		return fmt.Errorf("%w: output_chunk_length must be > 0, got %d", ErrValidation, w.OutputChunkLength)
	}
	return nil
}

// SamplesIn returns the number of distinct windows a series of the given
// length holds. It is < 1 for a series that is too short.
func (w Window) SamplesIn(seriesLen int) int {
	return seriesLen - w.InputChunkLength - w.OutputChunkLength + 1
}

// Capacity returns the number of sample slots allotted to every series.
// A positive maxSamples is used as is; otherwise the capacity is the number
// of windows in the longest series.
func Capacity(lengths []int, w Window, maxSamples int) (int, error) {
	if maxSamples > 0 {
		return maxSamples, nil
	}
	if maxSamples < 0 {
		return 0, fmt.Errorf("%w: max_samples_per_series must be >= 0, got %d", ErrValidation, maxSamples)
	}
	if len(lengths) == 0 {
		return 0, fmt.Errorf("%w: no target series", ErrValidation)
	}

	longest := lengths[0]
	for _, n := range lengths[1:] {
		if n > longest {
			longest = n
		}
	}
	capacity := w.SamplesIn(longest)
	if capacity < 1 {
		return 0, fmt.Errorf("%w: longest series has %d steps, need at least %d",
			ErrValidation, longest, w.InputChunkLength+w.OutputChunkLength)
	}
	return capacity, nil
}

// Locate maps a flat sample index to the series it belongs to and to the
// position of the forecast point counted from the end of that series.
// An offset equal to OutputChunkLength is the most recent forecast point.
//
// lengthOf returns the length of a series given its index; Locate calls it
// once, for the resolved series only.
func Locate(flatIndex, capacity int, w Window, lengthOf func(seriesIdx int) int) (seriesIdx, offset int, err error) {
	if capacity < 1 {
		return 0, 0, fmt.Errorf("%w: capacity %d", ErrOutOfRange, capacity)
	}
	if flatIndex < 0 {
		return 0, 0, fmt.Errorf("%w: negative index %d", ErrOutOfRange, flatIndex)
	}

	seriesIdx = flatIndex / capacity

	nSamples := w.SamplesIn(lengthOf(seriesIdx))
	if nSamples < 1 {
		return 0, 0, fmt.Errorf("%w: series %d is too short for input_chunk_length + output_chunk_length = %d",
			ErrOutOfRange, seriesIdx, w.InputChunkLength+w.OutputChunkLength)
	}

	// slots beyond the windows of a short series wrap around
	local := (flatIndex - seriesIdx*capacity) % nSamples

	return seriesIdx, w.OutputChunkLength + local, nil
}
