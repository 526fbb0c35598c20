package timeseries

import (
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// New builds a deterministic series from a time index and a T x K value matrix.
// names may be nil, in which case the columns are named "0", "1", ...
func New(times []float64, values *mat.Dense, names []string) (*TimeSeries, error) {
	if values == nil || values.IsEmpty() {
		return nil, ErrEmpty
	}
	return FromTimesAndValues(times, []*mat.Dense{values}, names)
}

// FromTimesAndValues builds a series from a time index and one or more
// realizations. More than one realization makes the series stochastic.
// The time index and the values are copied.
func FromTimesAndValues(times []float64, samples []*mat.Dense, names []string) (*TimeSeries, error) {
	if len(samples) == 0 || samples[0] == nil || samples[0].IsEmpty() {
		return nil, ErrEmpty
	}
	T, K := samples[0].Dims()
	if len(times) != T {
		return nil, fmt.Errorf("%w: %d timestamps for %d rows", ErrTimeIndex, len(times), T)
	}
	for i := 1; i < T; i++ {
		if !(times[i] > times[i-1]) {
			return nil, fmt.Errorf("%w: not strictly increasing at position %d", ErrTimeIndex, i)
		}
	}
	for s, m := range samples[1:] {
		if m == nil {
			return nil, fmt.Errorf("%w: realization %d is nil", ErrShape, s+1)
		}
		r, c := m.Dims()
		if r != T || c != K {
			return nil, fmt.Errorf("%w: realization %d is %dx%d, expected %dx%d", ErrShape, s+1, r, c, T, K)
		}
	}

	if names == nil {
		names = make([]string, K)
		for k := range names {
			names[k] = strconv.Itoa(k)
		}
	}
	if len(names) != K {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrShape, len(names), K)
	}

	ts := &TimeSeries{
		Time:     append([]float64(nil), times...),
		VarNames: append([]string(nil), names...),
	}
	if len(samples) == 1 {
		ts.Y = mat.DenseCopyOf(samples[0])
		return ts, nil
	}
	ts.Samples = make([]*mat.Dense, len(samples))
	for s, m := range samples {
		ts.Samples[s] = mat.DenseCopyOf(m)
	}
	ts.Y = ts.Samples[0]
	return ts, nil
}

// Len returns the number of time steps.
func (ts *TimeSeries) Len() int {
	if ts == nil || ts.Y == nil {
		return 0
	}
	r, _ := ts.Y.Dims()
	return r
}

// Width returns the number of variables (columns).
func (ts *TimeSeries) Width() int {
	if ts == nil || ts.Y == nil {
		return 0
	}
	_, c := ts.Y.Dims()
	return c
}

// NumSamples returns the number of realizations, 1 for a deterministic series.
func (ts *TimeSeries) NumSamples() int {
	if len(ts.Samples) > 1 {
		return len(ts.Samples)
	}
	return 1
}

// IsDeterministic reports whether the series holds a single realization.
func (ts *TimeSeries) IsDeterministic() bool { return ts.NumSamples() == 1 }

// TimeAt returns the timestamp at position pos.
func (ts *TimeSeries) TimeAt(pos int) float64 { return ts.Time[pos] }

// StartTime returns the first timestamp.
func (ts *TimeSeries) StartTime() float64 { return ts.Time[0] }

// EndTime returns the last timestamp.
func (ts *TimeSeries) EndTime() float64 { return ts.Time[len(ts.Time)-1] }

// IndexOf returns the position whose timestamp equals t.
func (ts *TimeSeries) IndexOf(t float64) (int, bool) {
	pos := sort.SearchFloat64s(ts.Time, t)
	// the match may sit just below t because of rounding in the index
	for _, p := range []int{pos - 1, pos} {
		if p >= 0 && p < len(ts.Time) && sameTime(ts.Time[p], t) {
			return p, true
		}
	}
	return -1, false
}

// Freq returns the step between the first two timestamps, or 0 when the
// series has fewer than two rows.
func (ts *TimeSeries) Freq() float64 {
	if len(ts.Time) < 2 {
		return 0
	}
	return ts.Time[1] - ts.Time[0]
}

// IsRegular reports whether every step of the time index equals Freq.
func (ts *TimeSeries) IsRegular() bool {
	if len(ts.Time) < 3 {
		return true
	}
	diffs := make([]float64, len(ts.Time)-1)
	floats.SubTo(diffs, ts.Time[1:], ts.Time[:len(ts.Time)-1])
	freq := diffs[0]
	for _, d := range diffs[1:] {
		if !sameTime(d, freq) {
			return false
		}
	}
	return true
}

// Rows returns a view on rows [start, end) of the first realization.
func (ts *TimeSeries) Rows(start, end int) (mat.Matrix, error) {
	if start < 0 || end > ts.Len() || start >= end {
		return nil, fmt.Errorf("%w: rows [%d, %d) of %d", ErrRange, start, end, ts.Len())
	}
	return ts.Y.Slice(start, end, 0, ts.Width()), nil
}

// FromEnd returns a view addressed by positions counted from the end of the
// series: rows [Len()-from, Len()-to). A to of 0 means "up to the last row".
func (ts *TimeSeries) FromEnd(from, to int) (mat.Matrix, error) {
	n := ts.Len()
	if to < 0 || from <= to || from > n {
		return nil, fmt.Errorf("%w: [-%d, -%d) of %d", ErrRange, from, to, n)
	}
	return ts.Rows(n-from, n-to)
}

// Copy returns a deep copy of the series.
func (ts *TimeSeries) Copy() *TimeSeries {
	out := &TimeSeries{
		Time:     append([]float64(nil), ts.Time...),
		VarNames: append([]string(nil), ts.VarNames...),
	}
	if len(ts.Samples) > 1 {
		out.Samples = make([]*mat.Dense, len(ts.Samples))
		for s, m := range ts.Samples {
			out.Samples[s] = mat.DenseCopyOf(m)
		}
		out.Y = out.Samples[0]
		return out
	}
	out.Y = mat.DenseCopyOf(ts.Y)
	return out
}

func sameTime(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, regularTolerance, regularTolerance)
}
