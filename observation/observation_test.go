package observation

import (
	"errors"
	"strings"
	"testing"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	s, err := New(50, 40, 100, 100)
	assert.NotNil(s)
	assert.NoError(err)

	nx, ny, dx, dy := s.Dims()
	assert.Equal(50, nx)
	assert.Equal(40, ny)
	assert.Equal(100.0, dx)
	assert.Equal(100.0, dy)
	assert.Equal(2000, s.States())
	assert.Equal(0, s.Len())

	for _, test := range []struct {
		nx, ny int
		dx, dy float64
	}{
		{0, 10, 1, 1},
		{10, -1, 1, 1},
		{10, 10, 0, 1},
		{10, 10, 1, -2},
	} {
		s, err := New(test.nx, test.ny, test.dx, test.dy)
		assert.Nil(s)
		assert.True(errors.Is(err, filter.ErrInvalidParameter))
	}
}

func TestAddWell(t *testing.T) {
	assert := assert.New(t)

	s, err := New(10, 5, 10, 20)
	require.NoError(t, err)

	assert.NoError(s.AddWell(15, 30, 0.1, "north"))
	assert.NoError(s.AddWell(0, 0, 0, ""))

	wells := s.Wells()
	assert.Len(wells, 2)
	assert.Equal(Well{X: 15, Y: 30, NoiseStd: 0.1, Name: "north"}, wells[0])
	assert.Equal("well-2", wells[1].Name)

	// Wells returns a copy
	wells[0].Name = "changed"
	assert.Equal("north", s.Wells()[0].Name)

	err = s.AddWell(1, 1, -0.1, "")
	assert.True(errors.Is(err, filter.ErrInvalidParameter))
	assert.Equal(2, s.Len())
}

func TestAddWellOutOfBounds(t *testing.T) {
	assert := assert.New(t)

	s, err := New(10, 5, 10, 20)
	require.NoError(t, err)

	for _, test := range [][2]float64{
		{-1, 10},
		{100, 10},
		{50, 100},
		{50, -0.5},
		{1000, 1000},
	} {
		err := s.AddWell(test[0], test[1], 0.1, "bad")
		assert.True(errors.Is(err, ErrWellOutOfBounds), "%v", test)

		var oob *WellOutOfBoundsError
		assert.True(errors.As(err, &oob))
		assert.Equal(test[0], oob.Well.X)
		assert.Equal(100.0, oob.Width)
		assert.Equal(100.0, oob.Height)
		assert.Contains(err.Error(), "bad")
	}

	assert.Equal(0, s.Len())
}

func TestWellIndices(t *testing.T) {
	assert := assert.New(t)

	s, err := New(10, 5, 10, 20)
	require.NoError(t, err)

	require.NoError(t, s.AddWell(15, 30, 0.1, ""))
	require.NoError(t, s.AddWell(99.9, 99.9, 0.1, ""))
	require.NoError(t, s.AddWell(0, 0, 0.1, ""))

	idx, err := s.WellIndices()
	assert.NoError(err)
	assert.Equal([][2]int{{1, 1}, {4, 9}, {0, 0}}, idx)
}

func TestObservationMatrix(t *testing.T) {
	assert := assert.New(t)

	s, err := New(6, 4, 1, 1)
	require.NoError(t, err)

	_, err = s.ObservationMatrix()
	assert.Error(err)
	assert.Nil(s.ObservationCov())

	require.NoError(t, s.AddWell(2.5, 1.5, 0.5, ""))
	require.NoError(t, s.AddWell(5.2, 3.7, 0.2, ""))

	state := mat.NewDense(4, 6, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 6; j++ {
			state.Set(i, j, float64(10*i+j)+0.125)
		}
	}

	h, err := s.ObservationMatrix()
	assert.NoError(err)
	r, c := h.Dims()
	assert.Equal(2, r)
	assert.Equal(24, c)

	z := mat.NewVecDense(2, nil)
	z.MulVec(h, matrix.Flatten(state))
	// exact selection, no interpolation
	assert.Equal(state.At(1, 2), z.AtVec(0))
	assert.Equal(state.At(3, 5), z.AtVec(1))

	cov := s.ObservationCov()
	assert.Equal(0.25, cov.At(0, 0))
	assert.InDelta(0.04, cov.At(1, 1), 1e-15)
	assert.Equal(0.0, cov.At(0, 1))
}

func TestObserve(t *testing.T) {
	assert := assert.New(t)

	truth := mat.NewDense(50, 50, nil)
	for i := 0; i < 50; i++ {
		for j := 0; j < 50; j++ {
			truth.Set(i, j, 10.0)
		}
	}

	s, err := New(50, 50, 100, 100)
	require.NoError(t, err)

	_, err = s.Observe(truth, false)
	assert.Error(err)

	require.NoError(t, s.AddWell(2500, 2500, 0.0, ""))

	idx, err := s.WellIndices()
	assert.NoError(err)
	assert.Equal([][2]int{{25, 25}}, idx)

	z, err := s.Observe(truth, false)
	assert.NoError(err)
	assert.Equal([]float64{10.0}, z.RawVector().Data)

	// zero noise std with noise enabled changes nothing
	z, err = s.Observe(truth, true)
	assert.NoError(err)
	assert.Equal([]float64{10.0}, z.RawVector().Data)

	_, err = s.Observe(mat.NewDense(50, 49, nil), false)
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
}

func TestObserveNoise(t *testing.T) {
	assert := assert.New(t)

	s, err := New(2, 1, 1, 1, WithSource(rand.NewSource(13)))
	require.NoError(t, err)
	require.NoError(t, s.AddWell(0.5, 0.5, 2.0, ""))
	require.NoError(t, s.AddWell(1.5, 0.5, 0.0, ""))

	truth := mat.NewDense(1, 2, []float64{5, 7})

	n := 4000
	first := make([]float64, n)
	for i := range first {
		z, err := s.Observe(truth, true)
		require.NoError(t, err)
		first[i] = z.AtVec(0)
		assert.Equal(7.0, z.AtVec(1))
	}

	assert.InDelta(5.0, stat.Mean(first, nil), 0.15)
	assert.InDelta(2.0, stat.StdDev(first, nil), 0.15)
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)

	doc := `
nx: 20
ny: 10
dx: 50
dy: 50
wells:
  - {x: 125, y: 75, noise_std: 0.05, name: mw-1}
  - {x: 900, y: 400, noise_std: 0.1}
`
	c, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(20, c.NX)
	assert.Len(c.Wells, 2)

	s, err := NewFromConfig(c)
	assert.NoError(err)
	assert.Equal(2, s.Len())
	assert.Equal("mw-1", s.Wells()[0].Name)

	idx, err := s.WellIndices()
	assert.NoError(err)
	assert.Equal([2]int{1, 2}, idx[0])
	assert.Equal([2]int{8, 18}, idx[1])

	_, err = LoadConfig(strings.NewReader("nx: 1\nbogus: 2\n"))
	assert.Error(err)

	c.Wells = append(c.Wells, WellConfig{X: 5000, Y: 0})
	_, err = NewFromConfig(c)
	assert.True(errors.Is(err, ErrWellOutOfBounds))
}

func TestObserveNoiseDefaultSource(t *testing.T) {
	assert := assert.New(t)

	s, err := New(1, 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, s.AddWell(0.5, 0.5, 1.0, ""))

	truth := mat.NewDense(1, 1, []float64{3})

	seen := make(map[float64]bool)
	for i := 0; i < 100; i++ {
		z, err := s.Observe(truth, true)
		require.NoError(t, err)
		seen[z.AtVec(0)] = true
	}

	// back to back calls never repeat the noise
	assert.Len(seen, 100)
}
