package sim

import (
	"errors"
	"math"
	"testing"

	filter "github.com/gwflow/go-assim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewLinear(t *testing.T) {
	assert := assert.New(t)

	l, err := NewLinear(mat.NewDense(6, 6, nil), 3, 2)
	assert.NotNil(l)
	assert.NoError(err)

	l, err = NewLinear(mat.NewDense(6, 5, nil), 3, 2)
	assert.Nil(l)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	l, err = NewLinear(mat.NewDense(4, 4, nil), 3, 2)
	assert.Nil(l)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	l, err = NewLinear(nil, 3, 2)
	assert.Nil(l)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))

	l, err = NewLinear(mat.NewDense(6, 6, nil), 0, 2)
	assert.Nil(l)
	assert.True(errors.Is(err, filter.ErrInvalidParameter))
}

func TestLinearDecay(t *testing.T) {
	assert := assert.New(t)

	l, err := NewDecay(3, 2, 0.5)
	require.NoError(t, err)

	f, err := l.Discretize(0)
	assert.NoError(err)
	r, c := f.Dims()
	assert.Equal(6, r)
	assert.Equal(6, c)
	assert.Equal(1.0, f.At(3, 3))
	assert.Equal(0.0, f.At(3, 2))

	f, err = l.Discretize(2)
	assert.NoError(err)
	assert.InDelta(math.Exp(-1), f.At(0, 0), 1e-12)
	assert.InDelta(0.0, f.At(0, 1), 1e-12)

	field := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	out, err := l.Step(field, 2)
	assert.NoError(err)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(field.At(i, j)*math.Exp(-1), out.At(i, j), 1e-12)
		}
	}

	_, err = l.Step(mat.NewDense(3, 2, nil), 1)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
}

func TestLinearCoupled(t *testing.T) {
	assert := assert.New(t)

	// two cells exchanging head: the sum is conserved, the difference decays
	A := mat.NewDense(2, 2, []float64{
		-1, 1,
		1, -1,
	})
	l, err := NewLinear(A, 2, 1)
	require.NoError(t, err)

	out, err := l.Step(mat.NewDense(1, 2, []float64{4, 0}), 1)
	assert.NoError(err)
	assert.InDelta(4.0, out.At(0, 0)+out.At(0, 1), 1e-12)
	assert.InDelta(4*math.Exp(-2), out.At(0, 0)-out.At(0, 1), 1e-12)
}
