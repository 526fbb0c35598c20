package filtering

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dims returns the state, output and input dimensions.
func (m *StateSpaceModel) Dims() (x, y, u int) {
	x, _ = m.A.Dims()
	y, _ = m.C.Dims()
	if m.B != nil {
		_, u = m.B.Dims()
	}
	return x, y, u
}

// Validate checks that all matrices agree with A and C.
func (m *StateSpaceModel) Validate() error {
	if m == nil || m.A == nil || m.C == nil || m.Q == nil || m.R == nil {
		return fmt.Errorf("%w: model needs A, C, Q and R", ErrValidation)
	}
	n, nc := m.A.Dims()
	if n != nc {
		return fmt.Errorf("%w: A is %dx%d, not square", ErrValidation, n, nc)
	}
	l, cc := m.C.Dims()
	if cc != n {
		return fmt.Errorf("%w: C is %dx%d, expected %d columns", ErrValidation, l, cc, n)
	}
	if m.Q.SymmetricDim() != n {
		return fmt.Errorf("%w: Q is %d-dimensional, expected %d", ErrValidation, m.Q.SymmetricDim(), n)
	}
	if m.R.SymmetricDim() != l {
		return fmt.Errorf("%w: R is %d-dimensional, expected %d", ErrValidation, m.R.SymmetricDim(), l)
	}
	if (m.B == nil) != (m.D == nil) {
		return fmt.Errorf("%w: B and D must both be set or both be nil", ErrValidation)
	}
	if m.B != nil {
		br, u := m.B.Dims()
		dr, du := m.D.Dims()
		if br != n || dr != l || du != u {
			return fmt.Errorf("%w: B is %dx%d and D is %dx%d for %d states and %d outputs",
				ErrValidation, br, u, dr, du, n, l)
		}
	}
	if m.X0 != nil && m.X0.Len() != n {
		return fmt.Errorf("%w: X0 has %d entries, expected %d", ErrValidation, m.X0.Len(), n)
	}
	if m.P0 != nil && m.P0.SymmetricDim() != n {
		return fmt.Errorf("%w: P0 is %d-dimensional, expected %d", ErrValidation, m.P0.SymmetricDim(), n)
	}
	return nil
}

// Clone returns a deep copy sharing no storage with m.
func (m *StateSpaceModel) Clone() *StateSpaceModel {
	if m == nil {
		return nil
	}
	return &StateSpaceModel{
		A:  copyDense(m.A),
		B:  copyDense(m.B),
		C:  copyDense(m.C),
		D:  copyDense(m.D),
		Q:  copySym(m.Q),
		R:  copySym(m.R),
		X0: copyVec(m.X0),
		P0: copySym(m.P0),
	}
}

func copyDense(a *mat.Dense) *mat.Dense {
	if a == nil {
		return nil
	}
	return mat.DenseCopyOf(a)
}

func copySym(a *mat.SymDense) *mat.SymDense {
	if a == nil {
		return nil
	}
	out := mat.NewSymDense(a.SymmetricDim(), nil)
	out.CopySym(a)
	return out
}

func copyVec(a *mat.VecDense) *mat.VecDense {
	if a == nil {
		return nil
	}
	return mat.VecDenseCopyOf(a)
}

// symmetrize returns (a + a^T) / 2 as a SymDense.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return out
}

func eye(n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 1.0)
	}
	return out
}
