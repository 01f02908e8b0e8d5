package rand

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/matrix"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// NewSource returns a random source seeded with seed.
// Zero seed returns nil, which makes the samplers fall back to the global source.
func NewSource(seed uint64) rand.Source {
	if seed == 0 {
		return nil
	}

	return rand.NewSource(seed)
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// Random numbers are drawn from src; if src is nil the global source is used.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid number of samples requested: %d", filter.ErrInvalidParameter, n)
	}

	normFloat64 := rand.NormFloat64
	if src != nil {
		normFloat64 = rand.New(src).NormFloat64
	}

	rows := cov.SymmetricDim()

	// independent components don't need factorization: scale each row by its std
	if matrix.IsDiagonal(cov) {
		samples := mat.NewDense(rows, n, nil)
		for r := 0; r < rows; r++ {
			v := cov.At(r, r)
			if v < 0 {
				return nil, fmt.Errorf("%w: negative variance at %d: %f", filter.ErrInvalidParameter, r, v)
			}
			std := math.Sqrt(v)
			for c := 0; c < n; c++ {
				samples.Set(r, c, std*normFloat64())
			}
		}

		return samples, nil
	}

	// Use SVD instead of Cholesky as Cholesky can be numerically unstable if cov is (almost) singular
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	data := make([]float64, rows*n)
	for i := range data {
		data[i] = normFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// WithMeanCovN draws n samples from a Normal distribution with the given mean and covariance.
// Unlike WithCovN it stores the samples in the rows of the returned matrix.
// It fails with error if mean and cov dimensions don't match or if the samples fail to be drawn.
func WithMeanCovN(mean mat.Vector, cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if mean.Len() != cov.SymmetricDim() {
		return nil, fmt.Errorf("%w: mean length %d, covariance [%d x %d]",
			filter.ErrDimensionMismatch, mean.Len(), cov.SymmetricDim(), cov.SymmetricDim())
	}

	samples, err := WithCovN(cov, n, src)
	if err != nil {
		return nil, err
	}

	out := mat.DenseCopyOf(samples.T())
	for r := 0; r < n; r++ {
		row := out.RawRowView(r)
		for c := range row {
			row[c] += mean.AtVec(c)
		}
	}

	return out, nil
}
