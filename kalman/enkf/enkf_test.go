package enkf

import (
	"errors"
	"testing"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/kalman/kf"
	"github.com/gwflow/go-assim/matrix"
	"github.com/gwflow/go-assim/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}

	return m
}

func priorEnsemble(t *testing.T, n int, seed uint64) *mat.Dense {
	mean := mat.NewVecDense(3, []float64{10, 12, 8})
	cov := mat.NewSymDense(3, []float64{
		1.0, 0.3, 0.0,
		0.3, 0.8, 0.1,
		0.0, 0.1, 0.5,
	})

	ens, err := rand.WithMeanCovN(mean, cov, n, rand.NewSource(seed))
	require.NoError(t, err)

	return ens
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	H := mat.NewDense(1, 3, []float64{1, 0, 0})
	R := mat.NewSymDense(1, []float64{0.5})

	f, err := New(10, H, R)
	assert.NoError(err)
	assert.Equal(10, f.Size())
	assert.Equal(1.0, f.Inflation())

	f, err = New(10, H, R, WithInflation(1.1), WithSource(rand.NewSource(1)))
	assert.NoError(err)
	assert.Equal(1.1, f.Inflation())

	f, err = New(1, H, R)
	assert.Nil(f)
	assert.True(errors.Is(err, filter.ErrInvalidParameter))

	f, err = New(10, H, R, WithInflation(0))
	assert.Nil(f)
	assert.True(errors.Is(err, filter.ErrInvalidParameter))

	f, err = New(10, H, mat.NewSymDense(2, nil))
	assert.Nil(f)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	f, err = New(10, nil, R)
	assert.Nil(f)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
}

func TestAssimilateDims(t *testing.T) {
	assert := assert.New(t)

	H := mat.NewDense(1, 3, []float64{1, 0, 0})
	R := mat.NewSymDense(1, []float64{0.5})
	f, err := New(20, H, R, WithSource(rand.NewSource(2)))
	assert.NoError(err)

	ens := priorEnsemble(t, 20, 1)
	orig := mat.DenseCopyOf(ens)

	out, err := f.Assimilate(ens, mat.NewVecDense(1, []float64{9.0}))
	assert.NoError(err)
	r, c := out.Dims()
	assert.Equal(20, r)
	assert.Equal(3, c)
	// input ensemble is left intact
	assert.True(mat.Equal(orig, ens))

	_, err = f.Assimilate(priorEnsemble(t, 10, 1), mat.NewVecDense(1, nil))
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	_, err = f.Assimilate(ens, mat.NewVecDense(2, nil))
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	_, err = f.Assimilate(nil, mat.NewVecDense(1, nil))
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
}

func TestAssimilateConvergesToKF(t *testing.T) {
	assert := assert.New(t)

	n := 1000
	H := eye(3)
	R := mat.NewSymDense(3, []float64{
		0.5, 0, 0,
		0, 0.5, 0,
		0, 0, 0.5,
	})
	z := mat.NewVecDense(3, []float64{11, 11, 9})

	f, err := New(n, H, R, WithSource(rand.NewSource(7)))
	require.NoError(t, err)

	ens := priorEnsemble(t, n, 3)

	// KF posterior computed from the prior ensemble statistics
	mean, cov, err := f.MeanCov(ens)
	require.NoError(t, err)
	k, err := kf.New(eye(3), H, mat.NewSymDense(3, nil), R, nil)
	require.NoError(t, err)
	res, err := k.Update(mean, cov, z)
	require.NoError(t, err)

	post, err := f.Assimilate(ens, z)
	require.NoError(t, err)
	postMean, postCov, err := f.MeanCov(post)
	require.NoError(t, err)

	diff := make([]float64, 3)
	floats.SubTo(diff, postMean.RawVector().Data, res.X.RawVector().Data)
	relErr := floats.Norm(diff, 2) / floats.Norm(res.X.RawVector().Data, 2)
	assert.Less(relErr, 0.05)

	// perturbed observations keep the posterior spread close to KF posterior variance
	for i := 0; i < 3; i++ {
		assert.InDelta(res.P.At(i, i), postCov.At(i, i), 0.2*res.P.At(i, i))
	}
}

func TestAssimilateInflation(t *testing.T) {
	assert := assert.New(t)

	n := 500
	H := mat.NewDense(1, 3, []float64{0, 1, 0})
	R := mat.NewSymDense(1, []float64{0.5})
	z := mat.NewVecDense(1, []float64{12})

	ens := priorEnsemble(t, n, 5)

	plain, err := New(n, H, R, WithSource(rand.NewSource(9)))
	require.NoError(t, err)
	inflated, err := New(n, H, R, WithInflation(1.5), WithSource(rand.NewSource(9)))
	require.NoError(t, err)

	a, err := plain.Assimilate(ens, z)
	require.NoError(t, err)
	b, err := inflated.Assimilate(ens, z)
	require.NoError(t, err)

	_, covA, err := MeanCov(a)
	require.NoError(t, err)
	_, covB, err := MeanCov(b)
	require.NoError(t, err)

	// unobserved component keeps most of its inflated spread
	assert.Greater(covB.At(2, 2), covA.At(2, 2))
	assert.Greater(mat.Trace(covB), mat.Trace(covA))
}

func TestAssimilateCollapsed(t *testing.T) {
	assert := assert.New(t)

	n := 10
	H := mat.NewDense(1, 3, []float64{1, 0, 0})
	// zero measurement noise with identical members makes Cyy singular
	R := mat.NewSymDense(1, []float64{0})

	f, err := New(n, H, R)
	require.NoError(t, err)

	ens := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		ens.SetRow(i, []float64{1, 2, 3})
	}

	out, err := f.Assimilate(ens, mat.NewVecDense(1, []float64{1.5}))
	assert.Nil(out)
	assert.True(errors.Is(err, filter.ErrSingular))
}

func TestMeanCov(t *testing.T) {
	assert := assert.New(t)

	ens := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	mean, cov, err := MeanCov(ens)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{2.5, 25}, mean.RawVector().Data, 1e-12)
	// unbiased: sum((x - mean)^2)/(n-1) = 5/3
	assert.InDelta(5.0/3.0, cov.At(0, 0), 1e-12)
	assert.InDelta(500.0/3.0, cov.At(1, 1), 1e-9)
	assert.InDelta(50.0/3.0, cov.At(0, 1), 1e-9)
	assert.True(matrix.IsSymmetric(cov, 0))

	_, _, err = MeanCov(mat.NewDense(1, 2, nil))
	assert.True(errors.Is(err, filter.ErrInvalidParameter))
}
