package filtering

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// maxJitterTries bounds how often a covariance that is only positive
// semi-definite gets a growing diagonal jitter before sampling gives up.
const maxJitterTries = 6

// Sampler draws from multivariate Gaussians with its own random source.
type Sampler struct {
	src rand.Source
}

// NewSampler returns a Sampler seeded with seed (if 0, time-based seed is used).
func NewSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Sampler{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Draw returns n draws from N(mean, cov) as an n x len(mean) matrix.
func (s *Sampler) Draw(mean mat.Vector, cov mat.Symmetric, n int) (*mat.Dense, error) {
	dim := mean.Len()
	if cov.SymmetricDim() != dim {
		return nil, fmt.Errorf("%w: mean has %d entries, covariance is %d-dimensional", ErrValidation, dim, cov.SymmetricDim())
	}
	mu := make([]float64, dim)
	for i := range mu {
		mu[i] = mean.AtVec(i)
	}

	sigma := mat.NewSymDense(dim, nil)
	sigma.CopySym(cov)

	scale := 0.0
	for i := 0; i < dim; i++ {
		scale += sigma.At(i, i)
	}
	scale /= float64(dim)
	if scale <= 0 {
		scale = 1
	}

	jitter := 1e-12 * scale
	dist, ok := distmv.NewNormal(mu, sigma, s.src)
	for try := 0; !ok && try < maxJitterTries; try++ {
		for i := 0; i < dim; i++ {
			sigma.SetSym(i, i, sigma.At(i, i)+jitter)
		}
		jitter *= 100
		dist, ok = distmv.NewNormal(mu, sigma, s.src)
	}
	if !ok {
		return nil, fmt.Errorf("%w: covariance is not positive definite", ErrNumerical)
	}

	out := mat.NewDense(n, dim, nil)
	for k := 0; k < n; k++ {
		dist.Rand(out.RawRowView(k))
	}
	return out, nil
}
