package dataset

import (
	"fmt"
	"math"

	"tsforecast/timeseries"
)

// CovariateOffset translates a forecast point offset of target (counted from
// its end) into the matching offset of covariate, so that the covariate rows
// [-(offset+inputLen), -offset) cover the same time span as the past target.
//
// The forecast point is looked up in the covariate time index. A covariate may
// end before the forecast point, in which case its position is extrapolated
// with the shared frequency.
func CovariateOffset(target, covariate *timeseries.TimeSeries, offset, inputLen int) (int, error) {
	n := target.Len()
	if offset < 1 || offset > n {
		return 0, fmt.Errorf("%w: offset %d for a target of %d steps", ErrOutOfRange, offset, n)
	}
	m := covariate.Len()
	if m == 0 {
		return 0, fmt.Errorf("%w: empty covariate", ErrAlignment)
	}

	freq, targetFreq := covariate.Freq(), target.Freq()
	if freq != 0 && targetFreq != 0 && !sameStep(freq, targetFreq) {
		return 0, fmt.Errorf("%w: covariate frequency %g differs from target frequency %g",
			ErrAlignment, freq, targetFreq)
	}
	if freq == 0 {
		freq = targetFreq
	}

	forecastTime := target.TimeAt(n - offset)
	pos, ok := covariate.IndexOf(forecastTime)
	if !ok {
		if freq == 0 || forecastTime < covariate.EndTime() {
			return 0, fmt.Errorf("%w: no covariate at time %g", ErrAlignment, forecastTime)
		}
		steps := (forecastTime - covariate.EndTime()) / freq
		rounded := math.Round(steps)
		if !sameStep(steps, rounded) {
			return 0, fmt.Errorf("%w: time %g is not on the covariate grid", ErrAlignment, forecastTime)
		}
		pos = m - 1 + int(rounded)
	}

	if pos > m {
		return 0, fmt.Errorf("%w: covariate ends at %g, %d steps before the past window ends",
			ErrAlignment, covariate.EndTime(), pos-m)
	}
	if pos-inputLen < 0 {
		return 0, fmt.Errorf("%w: covariate starts at %g, too late for a past window of %d steps ending before %g",
			ErrAlignment, covariate.StartTime(), inputLen, forecastTime)
	}
	return m - pos, nil
}

func sameStep(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
