package filtering

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"tsforecast/logging"
	"tsforecast/timeseries"
)

// NewKalmanFilter returns an unfitted filter; call Fit before Filter.
func NewKalmanFilter(cfg Config) *KalmanFilter {
	if cfg.NumBlockRows <= 0 {
		cfg.NumBlockRows = defaultBlockRows
	}
	return &KalmanFilter{cfg: cfg, log: logging.GetLog("filtering")}
}

// NewKalmanFilterFromModel returns a filter over a known model. The state
// and output dimensions are taken from the model, and Filter checks that
// observation series match the output dimension.
func NewKalmanFilterFromModel(model *StateSpaceModel, cfg Config) (*KalmanFilter, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	kf := NewKalmanFilter(cfg)
	kf.model = model.Clone()
	kf.provided = true
	kf.cfg.DimX, kf.cfg.DimY, _ = model.Dims()
	return kf, nil
}

func (kf *KalmanFilter) String() string {
	return fmt.Sprintf("KalmanFilter(dim_x=%d)", kf.cfg.DimX)
}

// IsFitted reports whether a model is available to Filter.
func (kf *KalmanFilter) IsFitted() bool {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return kf.model != nil
}

// Model returns a copy of the current model, nil before Fit.
func (kf *KalmanFilter) Model() *StateSpaceModel {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return kf.model.Clone()
}

// NoiseCovariance returns a copy of the joint noise covariance found by Fit,
// nil for a filter built from a given model.
func (kf *KalmanFilter) NoiseCovariance() *mat.SymDense {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return copySym(kf.noise)
}

// Fit identifies a model of dimension DimX from series, with covariates as
// inputs when not nil. It replaces any previous model.
func (kf *KalmanFilter) Fit(series, covariates *timeseries.TimeSeries) error {
	if series == nil || series.Y == nil {
		return fmt.Errorf("%w: series not provided", ErrValidation)
	}
	if !series.IsDeterministic() {
		return fmt.Errorf("%w: fit needs a deterministic series", ErrValidation)
	}
	if covariates != nil && covariates.Len() != series.Len() {
		return fmt.Errorf("%w: %d covariate steps for %d observations", ErrValidation, covariates.Len(), series.Len())
	}

	measurements, outputs, inputs, err := measurementTable(series, covariates)
	if err != nil {
		return err
	}

	id := Identifier{NumBlockRows: kf.cfg.NumBlockRows}
	model, noise, err := id.Identify(measurements, outputs, inputs, kf.cfg.DimX)
	if err != nil {
		return err
	}

	kf.mu.Lock()
	defer kf.mu.Unlock()
	kf.model = model
	kf.noise = noise
	kf.provided = false
	kf.cfg.DimY = len(outputs)

	kf.log.Debug("fit", "dim_x", kf.cfg.DimX, "dim_y", len(outputs), "dim_u", len(inputs),
		"steps", series.Len(), "block_rows", id.NumBlockRows)
	return nil
}

// measurementTable joins the observation columns (renamed y_<name>) and the
// covariate columns (renamed u_<name>) into one table.
func measurementTable(series, covariates *timeseries.TimeSeries) (*timeseries.TimeSeries, []string, []string, error) {
	T := series.Len()
	l := series.Width()
	m := 0
	if covariates != nil {
		m = covariates.Width()
	}

	values := mat.NewDense(T, l+m, nil)
	values.Slice(0, T, 0, l).(*mat.Dense).Copy(series.Y)
	outputs := make([]string, l)
	for k, name := range series.VarNames {
		outputs[k] = "y_" + name
	}

	var inputs []string
	if m > 0 {
		values.Slice(0, T, l, l+m).(*mat.Dense).Copy(covariates.Y)
		inputs = make([]string, m)
		for k, name := range covariates.VarNames {
			inputs[k] = "u_" + name
		}
	}

	table, err := timeseries.New(series.Time, values, append(append([]string(nil), outputs...), inputs...))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return table, outputs, inputs, nil
}

// Filter runs the filter over series, one step per observation, with the
// covariates at the same step as inputs. It returns a series on the same
// time index holding the filtered observation mean at each step, or
// numSamples draws from the filtered distribution when numSamples > 1.
//
// Every call filters with its own copy of the model, so calls may run
// concurrently.
func (kf *KalmanFilter) Filter(series, covariates *timeseries.TimeSeries, numSamples int) (*timeseries.TimeSeries, error) {
	if series == nil || series.Y == nil {
		return nil, fmt.Errorf("%w: series not provided", ErrValidation)
	}
	if !series.IsDeterministic() {
		return nil, fmt.Errorf("%w: the input series for the Kalman filter must be deterministic (observations)", ErrValidation)
	}
	if numSamples < 1 {
		return nil, fmt.Errorf("%w: num_samples must be >= 1, got %d", ErrValidation, numSamples)
	}

	kf.mu.RLock()
	if kf.model == nil {
		kf.mu.RUnlock()
		return nil, ErrNotFitted
	}
	model := kf.model.Clone()
	provided, dimY, seed := kf.provided, kf.cfg.DimY, kf.cfg.Seed
	kf.mu.RUnlock()

	_, l, m := model.Dims()
	if provided && series.Width() != dimY {
		return nil, fmt.Errorf("%w: series has %d columns, the filter output dimension is %d",
			ErrValidation, series.Width(), dimY)
	}
	if series.Width() != l {
		return nil, fmt.Errorf("%w: series has %d columns, the model has %d outputs", ErrValidation, series.Width(), l)
	}
	if m > 0 && covariates == nil {
		return nil, fmt.Errorf("%w: the model has %d inputs but no covariates were given", ErrValidation, m)
	}
	if covariates != nil {
		if covariates.Len() != series.Len() {
			return nil, fmt.Errorf("%w: %d covariate steps for %d observations", ErrValidation, covariates.Len(), series.Len())
		}
		if covariates.Width() != m {
			return nil, fmt.Errorf("%w: covariates have %d columns, the model has %d inputs", ErrValidation, covariates.Width(), m)
		}
	}

	T := series.Len()
	out := newStateSink(numSamples, T, l, seed)
	s := newSession(model)

	for t := 0; t < T; t++ {
		y := series.Y.RowView(t)
		var u mat.Vector
		if m > 0 {
			u = covariates.Y.RowView(t)
		}
		mean, cov, err := s.step(y, u)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		if err := out.put(t, mean, cov); err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
	}

	if kf.log.Enabled(context.Background(), logging.LevelTrace) {
		x, _ := s.state()
		kf.log.Log(context.Background(), logging.LevelTrace, "filter done", "steps", T, "samples", numSamples,
			"final_state", mat.Formatted(x, mat.Squeeze()))
	}

	return timeseries.FromTimesAndValues(series.Time, out.realizations(), series.VarNames)
}

// stateSink stores the per-step output of a filter run.
type stateSink interface {
	put(t int, mean *mat.VecDense, cov *mat.SymDense) error
	realizations() []*mat.Dense
}

func newStateSink(numSamples, T, dim int, seed uint64) stateSink {
	if numSamples == 1 {
		return &meanSink{values: mat.NewDense(T, dim, nil)}
	}
	draws := make([]*mat.Dense, numSamples)
	for k := range draws {
		draws[k] = mat.NewDense(T, dim, nil)
	}
	return &sampledSink{draws: draws, sampler: NewSampler(seed)}
}

// meanSink keeps the filtered mean, no noise is added.
type meanSink struct {
	values *mat.Dense
}

func (s *meanSink) put(t int, mean *mat.VecDense, _ *mat.SymDense) error {
	s.values.SetRow(t, mean.RawVector().Data)
	return nil
}

func (s *meanSink) realizations() []*mat.Dense { return []*mat.Dense{s.values} }

// sampledSink keeps one realization per Gaussian draw.
type sampledSink struct {
	draws   []*mat.Dense
	sampler *Sampler
}

func (s *sampledSink) put(t int, mean *mat.VecDense, cov *mat.SymDense) error {
	d, err := s.sampler.Draw(mean, cov, len(s.draws))
	if err != nil {
		return err
	}
	for k, m := range s.draws {
		m.SetRow(t, d.RawRowView(k))
	}
	return nil
}

func (s *sampledSink) realizations() []*mat.Dense { return s.draws }
