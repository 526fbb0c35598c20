// Package filtering infers the hidden state of a linear dynamical system from
// a series of observations with a Kalman filter. The system can be given
// directly or identified from data by subspace identification.
package filtering

import (
	"errors"
	"log/slog"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// StateSpaceModel is the linear system
//
//	x[t+1] = A x[t] + B u[t] + w[t],   w ~ N(0, Q)
//	y[t]   = C x[t] + D u[t] + v[t],   v ~ N(0, R)
//
// B and D are nil for a system without inputs.
type StateSpaceModel struct {
	A *mat.Dense
	B *mat.Dense
	C *mat.Dense
	D *mat.Dense
	Q *mat.SymDense
	R *mat.SymDense

	// Initial state and covariance. Nil means zeros and identity.
	X0 *mat.VecDense
	P0 *mat.SymDense
}

// Config holds the estimator dimensions and identification settings.
type Config struct {
	// State dimension
	DimX int
	// Observation dimension, inferred by Fit when 0
	DimY int
	// Block rows of the Hankel matrices used by Fit, 10 when 0
	NumBlockRows int
	// RNG seed for sampled outputs (if 0, time-based seed is used)
	Seed uint64
}

// KalmanFilter estimates states from observations. It is Unfitted until Fit
// succeeds or a model is given to NewKalmanFilterFromModel.
type KalmanFilter struct {
	cfg Config

	mu       sync.RWMutex
	model    *StateSpaceModel
	noise    *mat.SymDense // joint [w; v] covariance from identification
	provided bool

	log *slog.Logger
}

// Identifier is the subspace identification engine.
type Identifier struct {
	// Number of block rows i; the Hankel matrices hold i past and i future steps.
	NumBlockRows int
}

const defaultBlockRows = 10

var (
	// ErrValidation reports malformed input such as mismatched dimensions
	// or a stochastic observation series.
	ErrValidation = errors.New("filtering: invalid input")

	// ErrNotFitted is returned by Filter before a model exists.
	ErrNotFitted = errors.New("filtering: model not fitted")

	// ErrIdentification reports that no model could be identified from the data.
	ErrIdentification = errors.New("filtering: system identification failed")

	// ErrNumerical reports a covariance that cannot be factorized.
	ErrNumerical = errors.New("filtering: numerical failure")
)
