package filtering

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"tsforecast/timeseries"
)

// rankTolerance is the relative singular value below which a direction is
// treated as numerically zero.
const rankTolerance = 1e-10

// Identify fits a state-space model of dimension dimX to the measurement
// table. outputs and inputs name the columns holding y and u; inputs may be empty.
// It returns the model and the joint covariance of the process and
// measurement noise, [[Q S]; [S^T R]].
//
// Steps: block Hankel matrices of past and future data, oblique projection
// of the future outputs on the past data along the future inputs, an SVD
// truncated to dimX to get the state sequence, and a least-squares fit of
// [A B; C D] on consecutive states.
func (id Identifier) Identify(measurements *timeseries.TimeSeries, outputs, inputs []string, dimX int) (*StateSpaceModel, *mat.SymDense, error) {
	if measurements == nil || measurements.Y == nil {
		return nil, nil, fmt.Errorf("%w: measurements not provided", ErrIdentification)
	}
	if dimX <= 0 {
		return nil, nil, fmt.Errorf("%w: dim_x must be > 0, got %d", ErrIdentification, dimX)
	}
	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("%w: no output columns", ErrIdentification)
	}
	i := id.NumBlockRows
	if i <= 0 {
		i = defaultBlockRows
	}

	y, err := columns(measurements, outputs)
	if err != nil {
		return nil, nil, err
	}
	var u *mat.Dense
	if len(inputs) > 0 {
		if u, err = columns(measurements, inputs); err != nil {
			return nil, nil, err
		}
	}

	T := measurements.Len()
	l, m := len(outputs), len(inputs)
	j := T - 2*i + 1 // Hankel columns
	if dimX > i*l {
		return nil, nil, fmt.Errorf("%w: dim_x %d exceeds block rows x outputs = %d", ErrIdentification, dimX, i*l)
	}
	if j < 2*i*(l+m)+dimX {
		return nil, nil, fmt.Errorf("%w: %d observations are too few for %d block rows", ErrIdentification, T, i)
	}

	Yp := hankel(y, 0, i, j)
	Yf := hankel(y, i, i, j)

	// Wp = [Up; Yp], regressors Z = [Wp; Uf]
	wpRows := i * (m + l)
	Z := mat.NewDense(wpRows+i*m, j, nil)
	if m > 0 {
		Z.Slice(0, i*m, 0, j).(*mat.Dense).Copy(hankel(u, 0, i, j))
		Z.Slice(wpRows, wpRows+i*m, 0, j).(*mat.Dense).Copy(hankel(u, i, i, j))
	}
	Z.Slice(i*m, wpRows, 0, j).(*mat.Dense).Copy(Yp)

	// Yf ≈ L Z, solved as Z^T L^T ≈ Yf^T
	Lt, err := leastSquares(mat.DenseCopyOf(Z.T()), mat.DenseCopyOf(Yf.T()))
	if err != nil {
		return nil, nil, err
	}

	// Oblique projection O = Lw Wp, with Lw the Wp block of L
	var O mat.Dense
	O.Mul(Lt.Slice(0, wpRows, 0, i*l).T(), Z.Slice(0, wpRows, 0, j))

	var svd mat.SVD
	if ok := svd.Factorize(&O, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("%w: SVD of the projection failed", ErrIdentification)
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[dimX-1] <= rankTolerance*sv[0] {
		return nil, nil, fmt.Errorf("%w: projection has rank below dim_x = %d", ErrIdentification, dimX)
	}
	var V mat.Dense
	svd.VTo(&V)

	// State sequence X = S^(1/2) V^T, columns are times i..i+j-1
	X := mat.NewDense(dimX, j, nil)
	for r := 0; r < dimX; r++ {
		s := math.Sqrt(sv[r])
		for c := 0; c < j; c++ {
			X.Set(r, c, s*V.At(c, r))
		}
	}

	// [x_{k+1}; y_k] = [A B; C D] [x_k; u_k], one row per k
	n := dimX
	rows := j - 1
	Phi := mat.NewDense(rows, n+m, nil)
	Psi := mat.NewDense(rows, n+l, nil)
	for k := 0; k < rows; k++ {
		t := i + k
		for r := 0; r < n; r++ {
			Phi.Set(k, r, X.At(r, k))
			Psi.Set(k, r, X.At(r, k+1))
		}
		for c := 0; c < m; c++ {
			Phi.Set(k, n+c, u.At(t, c))
		}
		for c := 0; c < l; c++ {
			Psi.Set(k, n+c, y.At(t, c))
		}
	}
	Theta, err := leastSquares(Phi, Psi) // (n+m) x (n+l)
	if err != nil {
		return nil, nil, err
	}

	model := &StateSpaceModel{
		A: mat.DenseCopyOf(Theta.Slice(0, n, 0, n).T()),
		C: mat.DenseCopyOf(Theta.Slice(0, n, n, n+l).T()),
	}
	if m > 0 {
		model.B = mat.DenseCopyOf(Theta.Slice(n, n+m, 0, n).T())
		model.D = mat.DenseCopyOf(Theta.Slice(n, n+m, n, n+l).T())
	}

	// Residual covariance
	var fit, E mat.Dense
	fit.Mul(Phi, Theta)
	E.Sub(Psi, &fit)
	noise := mat.NewSymDense(n+l, nil)
	noise.SymOuterK(1/float64(rows), E.T())

	model.Q = copySym(noise.SliceSym(0, n).(*mat.SymDense))
	model.R = copySym(noise.SliceSym(n, n+l).(*mat.SymDense))

	return model, noise, nil
}

// columns copies the named columns of ts into a new T x len(names) matrix.
func columns(ts *timeseries.TimeSeries, names []string) (*mat.Dense, error) {
	T := ts.Len()
	out := mat.NewDense(T, len(names), nil)
	for c, name := range names {
		src := -1
		for k, v := range ts.VarNames {
			if v == name {
				src = k
				break
			}
		}
		if src < 0 {
			return nil, fmt.Errorf("%w: column %q not in measurements", ErrIdentification, name)
		}
		for t := 0; t < T; t++ {
			out.Set(t, c, ts.Y.At(t, src))
		}
	}
	return out, nil
}

// hankel returns the block Hankel matrix of data (rows are time steps) with
// the given number of block rows and columns, starting at time start:
// block row r, column c holds data[start+r+c].
func hankel(data *mat.Dense, start, blockRows, cols int) *mat.Dense {
	_, w := data.Dims()
	H := mat.NewDense(blockRows*w, cols, nil)
	for r := 0; r < blockRows; r++ {
		for c := 0; c < cols; c++ {
			for k := 0; k < w; k++ {
				H.Set(r*w+k, c, data.At(start+r+c, k))
			}
		}
	}
	return H
}

// leastSquares solves X B ≈ Y for B.
// It first tries the normal equations B = (X'X)^(-1) X'Y and falls back to
// the SVD minimum-norm solution when X'X is singular or badly conditioned.
func leastSquares(X, Y *mat.Dense) (*mat.Dense, error) {
	_, p := X.Dims()
	_, k := Y.Dims()

	var xtx, xtxInv mat.Dense
	xtx.Mul(X.T(), X)
	xtxError := xtxInv.Inverse(&xtx)
	if xtxError == nil {
		var xty, B mat.Dense
		xty.Mul(X.T(), Y)
		B.Mul(&xtxInv, &xty)
		return &B, nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: least squares: X'X singular and SVD factorization failed: %v", ErrIdentification, xtxError)
	}
	rank := svd.Rank(rankTolerance)
	if rank == 0 {
		return mat.NewDense(p, k, nil), nil
	}
	var B mat.Dense
	svd.SolveTo(&B, Y, rank)
	return &B, nil
}
