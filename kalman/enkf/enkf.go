// Package enkf implements the stochastic (perturbed observations) Ensemble Kalman Filter.
package enkf

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/matrix"
	"github.com/gwflow/go-assim/rand"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Option configures EnKF.
type Option func(*EnKF)

// WithInflation sets multiplicative covariance inflation factor.
// The ensemble deviations from the mean are scaled by sqrt(f) before the gain is computed.
func WithInflation(f float64) Option {
	return func(e *EnKF) {
		e.inflation = f
	}
}

// WithSource sets the random source used to perturb observations.
func WithSource(src exprand.Source) Option {
	return func(e *EnKF) {
		e.src = src
	}
}

// EnKF is Ensemble Kalman Filter.
// Ensembles are stored as matrices with one member per row.
type EnKF struct {
	// n is ensemble size
	n int
	// h is observation matrix
	h *mat.Dense
	// r is measurement noise covariance
	r *mat.SymDense
	// inflation is multiplicative covariance inflation factor
	inflation float64
	// src is source of observation perturbations
	src exprand.Source
}

// New creates new EnKF and returns it.
// It accepts the following parameters:
//   - n:    ensemble size; must be at least 2
//   - H:    observation matrix [m x n_states]
//   - R:    measurement noise covariance [m x m]
//
// It returns error if the ensemble size or inflation factor are invalid or if H and R dimensions don't match.
func New(n int, H mat.Matrix, R mat.Symmetric, opts ...Option) (*EnKF, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: invalid ensemble size: %d", filter.ErrInvalidParameter, n)
	}

	if H == nil || R == nil {
		return nil, fmt.Errorf("%w: missing observation matrices", filter.ErrDimensionMismatch)
	}

	ny, nx := H.Dims()
	if ny <= 0 || nx <= 0 {
		return nil, fmt.Errorf("%w: invalid observation matrix dimensions: [%d x %d]",
			filter.ErrDimensionMismatch, ny, nx)
	}

	if R.SymmetricDim() != ny {
		return nil, fmt.Errorf("%w: invalid output noise dimension: %d != %d",
			filter.ErrDimensionMismatch, R.SymmetricDim(), ny)
	}

	r := mat.NewSymDense(ny, nil)
	r.CopySym(R)

	e := &EnKF{
		n:         n,
		h:         mat.DenseCopyOf(H),
		r:         r,
		inflation: 1.0,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.inflation <= 0 || math.IsNaN(e.inflation) || math.IsInf(e.inflation, 0) {
		return nil, fmt.Errorf("%w: invalid inflation factor: %f", filter.ErrInvalidParameter, e.inflation)
	}

	return e, nil
}

// Assimilate corrects ensemble ens using the measurement z and returns the updated ensemble.
// Every member is updated against its own perturbed copy of z drawn from N(z, R) so that the
// spread of the updated ensemble reflects both model and measurement uncertainty.
// ens is not modified.
// It returns error if ens or z have invalid dimensions or if the innovation covariance is singular.
func (e *EnKF) Assimilate(ens *mat.Dense, z mat.Vector) (*mat.Dense, error) {
	ny, nx := e.h.Dims()

	if err := e.checkEnsemble(ens); err != nil {
		return nil, err
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("%w: invalid measurement length: %d", filter.ErrDimensionMismatch, z.Len())
	}

	norm := 1 / float64(e.n-1)

	// A: deviations from the ensemble mean scaled by sqrt(inflation)
	mean := matrix.ColMeans(ens)
	scale := math.Sqrt(e.inflation)
	a := mat.NewDense(e.n, nx, nil)
	for i := 0; i < e.n; i++ {
		row := ens.RawRowView(i)
		dev := a.RawRowView(i)
		for j := range dev {
			dev[j] = (row[j] - mean[j]) * scale
		}
	}

	// inflated ensemble: mean + A
	x := mat.DenseCopyOf(a)
	for i := 0; i < e.n; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] += mean[j]
		}
	}

	// S = A*H': deviations in observation space
	s := &mat.Dense{}
	s.Mul(a, e.h.T())

	// Cyy = S'*S/(n-1) + R
	cyy := &mat.Dense{}
	cyy.Mul(s.T(), s)
	cyy.Scale(norm, cyy)
	cyy.Add(cyy, e.r)

	// Cxy = A'*S/(n-1)
	cxy := &mat.Dense{}
	cxy.Mul(a.T(), s)
	cxy.Scale(norm, cxy)

	cyyInv := &mat.Dense{}
	if err := cyyInv.Inverse(cyy); err != nil {
		return nil, fmt.Errorf("%w: failed to invert innovation covariance: %v", filter.ErrSingular, err)
	}

	// K = Cxy*Cyy^-1
	gain := &mat.Dense{}
	gain.Mul(cxy, cyyInv)

	// perturbations drawn from N(0, R) stored in columns: one per member
	eps, err := rand.WithCovN(e.r, e.n, e.src)
	if err != nil {
		return nil, fmt.Errorf("failed to draw observation perturbations: %w", err)
	}

	// D - H*X': perturbed innovations stored in columns
	inn := &mat.Dense{}
	inn.Mul(e.h, x.T())
	for i := 0; i < ny; i++ {
		for j := 0; j < e.n; j++ {
			inn.Set(i, j, z.AtVec(i)+eps.At(i, j)-inn.At(i, j))
		}
	}

	// X' + K*(D - H*X')
	corr := &mat.Dense{}
	corr.Mul(gain, inn)

	out := mat.NewDense(e.n, nx, nil)
	out.Add(x, corr.T())

	return out, nil
}

// MeanCov returns ensemble mean and unbiased sample covariance.
// It returns error if ens has invalid dimensions.
func (e *EnKF) MeanCov(ens *mat.Dense) (*mat.VecDense, *mat.SymDense, error) {
	if err := e.checkEnsemble(ens); err != nil {
		return nil, nil, err
	}

	return MeanCov(ens)
}

// Size returns ensemble size.
func (e *EnKF) Size() int {
	return e.n
}

// Inflation returns covariance inflation factor.
func (e *EnKF) Inflation() float64 {
	return e.inflation
}

func (e *EnKF) checkEnsemble(ens *mat.Dense) error {
	if ens == nil {
		return fmt.Errorf("%w: nil ensemble", filter.ErrDimensionMismatch)
	}

	_, nx := e.h.Dims()
	rows, cols := ens.Dims()
	if rows != e.n || cols != nx {
		return fmt.Errorf("%w: invalid ensemble dimensions: [%d x %d], expected [%d x %d]",
			filter.ErrDimensionMismatch, rows, cols, e.n, nx)
	}

	return nil
}

// MeanCov returns mean and unbiased sample covariance of ensemble ens which stores members in its rows.
// It returns error if ens has fewer than 2 members.
func MeanCov(ens mat.Matrix) (*mat.VecDense, *mat.SymDense, error) {
	rows, cols := ens.Dims()
	if rows < 2 {
		return nil, nil, fmt.Errorf("%w: ensemble needs at least 2 members, got %d", filter.ErrInvalidParameter, rows)
	}

	mean := mat.NewVecDense(cols, matrix.ColMeans(mat.DenseCopyOf(ens)))

	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, ens, nil)

	return mean, cov, nil
}
