package filtering

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// session carries the recursive state of one filter run. Each run owns its
// session and its own copy of the model.
type session struct {
	model   *StateSpaceModel
	n, l, m int

	// predicted (prior) state and covariance for the next step
	x *mat.VecDense
	p *mat.Dense

	// filtered (posterior) state and covariance after the last step
	xf *mat.VecDense
	pf *mat.Dense
}

func newSession(model *StateSpaceModel) *session {
	n, l, m := model.Dims()
	s := &session{model: model, n: n, l: l, m: m}
	if model.X0 != nil {
		s.x = mat.VecDenseCopyOf(model.X0)
	} else {
		s.x = mat.NewVecDense(n, nil)
	}
	if model.P0 != nil {
		s.p = mat.DenseCopyOf(model.P0)
	} else {
		s.p = mat.DenseCopyOf(eye(n))
	}
	return s
}

// step fuses the observation y with the current prediction, then predicts
// the next state with input u. u may be nil for a model without inputs.
// It returns the filtered observation mean C x + D u and its covariance
// C P C^T + R.
func (s *session) step(y, u mat.Vector) (*mat.VecDense, *mat.SymDense, error) {
	model := s.model
	C, R := model.C, model.R

	// pre-fit residual y - C x - D u
	innovation := mat.NewVecDense(s.l, nil)
	innovation.MulVec(C, s.x)
	if s.m > 0 {
		var du mat.VecDense
		du.MulVec(model.D, u)
		innovation.AddVec(innovation, &du)
	}
	innovation.SubVec(y, innovation)

	// innovation covariance C P C^T + R
	innovationCov := mat.NewDense(s.l, s.l, nil)
	innovationCov.Product(C, s.p, C.T())
	innovationCov.Add(innovationCov, R)

	var chol mat.Cholesky
	if ok := chol.Factorize(symmetrize(innovationCov)); !ok {
		return nil, nil, fmt.Errorf("%w: innovation covariance is not positive definite", ErrNumerical)
	}

	// gain^T = S^-1 C P
	var cp, gainT mat.Dense
	cp.Mul(C, s.p)
	if err := chol.SolveTo(&gainT, &cp); err != nil {
		return nil, nil, fmt.Errorf("%w: kalman gain: %v", ErrNumerical, err)
	}

	xf := mat.NewVecDense(s.n, nil)
	xf.MulVec(gainT.T(), innovation)
	xf.AddVec(s.x, xf)

	// (I - K C) P
	pf := mat.NewDense(s.n, s.n, nil)
	pf.Mul(gainT.T(), C)
	pf.Sub(eye(s.n), pf)
	pf.Mul(pf, s.p)
	pf = mat.DenseCopyOf(symmetrize(pf))

	s.xf, s.pf = xf, pf

	yMean := mat.NewVecDense(s.l, nil)
	yMean.MulVec(C, xf)
	if s.m > 0 {
		var du mat.VecDense
		du.MulVec(model.D, u)
		yMean.AddVec(yMean, &du)
	}

	yCov := mat.NewDense(s.l, s.l, nil)
	yCov.Product(C, pf, C.T())
	yCov.Add(yCov, R)

	// predict
	s.x = mat.NewVecDense(s.n, nil)
	s.x.MulVec(model.A, xf)
	if s.m > 0 {
		var bu mat.VecDense
		bu.MulVec(model.B, u)
		s.x.AddVec(s.x, &bu)
	}
	s.p = mat.NewDense(s.n, s.n, nil)
	s.p.Product(model.A, pf, model.A.T())
	s.p.Add(s.p, model.Q)

	return yMean, symmetrize(yCov), nil
}

// state returns the filtered state and covariance of the last step.
func (s *session) state() (mat.Vector, mat.Matrix) {
	return s.xf, s.pf
}
