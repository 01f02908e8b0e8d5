// Package rts implements Rauch-Tung-Striebel fixed-interval smoother.
package rts

import (
	"fmt"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/estimate"
	"github.com/gwflow/go-assim/matrix"
	"gonum.org/v1/gonum/mat"
)

// RTS is Rauch-Tung-Striebel smoother
type RTS struct {
	// f is state propagation matrix
	f *mat.Dense
}

// New creates new RTS for a system with state propagation matrix F and returns it.
// It returns error if F is not a non-empty square matrix.
func New(F mat.Matrix) (*RTS, error) {
	if F == nil {
		return nil, fmt.Errorf("%w: missing propagation matrix", filter.ErrDimensionMismatch)
	}

	r, c := F.Dims()
	if r != c || r <= 0 {
		return nil, fmt.Errorf("%w: invalid propagation matrix dimensions: [%d x %d]",
			filter.ErrDimensionMismatch, r, c)
	}

	return &RTS{
		f: mat.DenseCopyOf(F),
	}, nil
}

// Smooth implements Rauch-Tung-Striebel smoothing algorithm.
// filtered stores posterior estimates and predicted stores prior estimates of the same steps:
// predicted[k] is the prediction which filtered[k] was corrected from.
// The last smoothed estimate equals the last filtered one; the rest are computed backwards.
// It returns error if the estimate slices are empty or of different lengths,
// if any estimate has invalid dimensions or if any predicted covariance is singular.
func (s *RTS) Smooth(filtered, predicted []filter.Estimate) ([]filter.Estimate, error) {
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: no estimates to smooth", filter.ErrInvalidParameter)
	}

	if len(filtered) != len(predicted) {
		return nil, fmt.Errorf("%w: estimate count mismatch: %d != %d",
			filter.ErrDimensionMismatch, len(filtered), len(predicted))
	}

	n, _ := s.f.Dims()
	for k := range filtered {
		if filtered[k].Val().Len() != n || predicted[k].Val().Len() != n {
			return nil, fmt.Errorf("%w: invalid estimate dimension at step %d", filter.ErrDimensionMismatch, k)
		}
	}

	sx := make([]filter.Estimate, len(filtered))

	last := len(filtered) - 1
	e, err := estimate.NewBaseWithCov(filtered[last].Val(), filtered[last].Cov())
	if err != nil {
		return nil, err
	}
	sx[last] = e

	for k := last - 1; k >= 0; k-- {
		// C = P_k * F' * P-_(k+1)^-1
		pinv := &mat.Dense{}
		if err := pinv.Inverse(predicted[k+1].Cov()); err != nil {
			return nil, fmt.Errorf("%w: failed to invert predicted covariance at step %d: %v",
				filter.ErrSingular, k+1, err)
		}

		c := &mat.Dense{}
		c.Mul(filtered[k].Cov(), s.f.T())
		c.Mul(c, pinv)

		// x_k + C*(xs_(k+1) - x-_(k+1))
		dx := mat.NewVecDense(n, nil)
		dx.SubVec(sx[k+1].Val(), predicted[k+1].Val())
		x := mat.NewVecDense(n, nil)
		x.MulVec(c, dx)
		x.AddVec(filtered[k].Val(), x)

		// P_k + C*(Ps_(k+1) - P-_(k+1))*C'
		dp := &mat.Dense{}
		dp.Sub(sx[k+1].Cov(), predicted[k+1].Cov())
		pk := &mat.Dense{}
		pk.Mul(c, dp)
		pk.Mul(pk, c.T())
		pk.Add(filtered[k].Cov(), pk)

		e, err := estimate.NewBaseWithCov(x, matrix.Symmetrize(pk))
		if err != nil {
			return nil, err
		}
		sx[k] = e
	}

	return sx, nil
}
