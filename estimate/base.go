// Package estimate holds filter estimates of the flattened head field and the
// statistics the twin derives from them.
package estimate

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"gonum.org/v1/gonum/mat"
)

// Base is a head field estimate: the flattened field and its covariance.
type Base struct {
	val *mat.VecDense
	cov *mat.SymDense
}

// NewBase returns estimate of val known exactly, i.e. with zero covariance.
func NewBase(val mat.Vector) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("%w: empty estimate value", filter.ErrDimensionMismatch)
	}

	return NewBaseWithCov(val, mat.NewSymDense(val.Len(), nil))
}

// NewBaseWithCov returns estimate of val with covariance cov.
// Both are copied. It returns error if their dimensions don't match.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	if val == nil || cov == nil {
		return nil, fmt.Errorf("%w: missing estimate value or covariance", filter.ErrDimensionMismatch)
	}

	if n := cov.SymmetricDim(); val.Len() != n {
		return nil, fmt.Errorf("%w: val: %d, cov: %d x %d", filter.ErrDimensionMismatch, val.Len(), n, n)
	}

	b := &Base{
		val: &mat.VecDense{},
		cov: mat.NewSymDense(cov.SymmetricDim(), nil),
	}
	b.val.CloneFromVec(val)
	b.cov.CopySym(cov)

	return b, nil
}

// Val returns a copy of the estimated field.
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns a copy of the estimate covariance.
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Std returns standard deviation of every component of e.
// Negative variances left over by rounding are treated as zero.
func Std(e filter.Estimate) []float64 {
	cov := e.Cov()

	std := make([]float64, cov.SymmetricDim())
	for i := range std {
		std[i] = math.Sqrt(math.Max(cov.At(i, i), 0))
	}

	return std
}

// Bounds returns e.Val() -/+ nStd standard deviations component-wise.
func Bounds(e filter.Estimate, nStd float64) (lower, upper *mat.VecDense) {
	x := e.Val()

	lower = mat.NewVecDense(x.Len(), nil)
	upper = mat.NewVecDense(x.Len(), nil)
	for i, s := range Std(e) {
		lower.SetVec(i, x.AtVec(i)-nStd*s)
		upper.SetVec(i, x.AtVec(i)+nStd*s)
	}

	return lower, upper
}
