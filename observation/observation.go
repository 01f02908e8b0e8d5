// Package observation maps a network of point sensors (observation wells) on a regular
// grid to the observation operator and noise covariance used by the filters.
//
// Fields are stored as ny x nx matrices: row i covers y in [i*dy, (i+1)*dy) and
// column j covers x in [j*dx, (j+1)*dx). Flattened state vectors are row-major,
// i.e. cell (i, j) is stored at index i*nx + j.
package observation

import (
	"fmt"
	"math"
	"time"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/noise"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Well is an observation well.
type Well struct {
	// X is well x coordinate
	X float64
	// Y is well y coordinate
	Y float64
	// NoiseStd is measurement noise standard deviation
	NoiseStd float64
	// Name is well name
	Name string
}

// Option configures System.
type Option func(*System)

// WithSource sets the random source used to generate synthetic measurement noise.
// By default the source is seeded with the time the System is created.
func WithSource(src rand.Source) Option {
	return func(s *System) {
		s.src = src
	}
}

// System is a network of observation wells on a regular grid.
type System struct {
	nx, ny int
	dx, dy float64
	wells  []Well
	src    rand.Source
}

// New creates new observation System for a grid of nx x ny cells of size dx x dy and returns it.
// It returns error if either of the grid dimensions or cell sizes is not positive.
func New(nx, ny int, dx, dy float64, opts ...Option) (*System, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid grid dimensions: [%d x %d]", filter.ErrInvalidParameter, nx, ny)
	}

	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("%w: invalid cell size: %f x %f", filter.ErrInvalidParameter, dx, dy)
	}

	s := &System{
		nx: nx,
		ny: ny,
		dx: dx,
		dy: dy,
	}

	for _, opt := range opts {
		opt(s)
	}

	// measurement noise keeps drawing from one source across calls
	if s.src == nil {
		s.src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	return s, nil
}

// AddWell adds a new well at coordinates x, y with measurement noise standard deviation noiseStd.
// If name is empty the well is named after its position in the network.
// It returns error if noiseStd is negative or if the well lies outside of the grid.
func (s *System) AddWell(x, y, noiseStd float64, name string) error {
	if noiseStd < 0 || math.IsNaN(noiseStd) {
		return fmt.Errorf("%w: invalid noise std: %f", filter.ErrInvalidParameter, noiseStd)
	}

	if name == "" {
		name = fmt.Sprintf("well-%d", len(s.wells)+1)
	}

	w := Well{X: x, Y: y, NoiseStd: noiseStd, Name: name}
	if _, _, err := s.cell(w); err != nil {
		return err
	}

	s.wells = append(s.wells, w)

	return nil
}

// Wells returns a copy of the well network.
func (s *System) Wells() []Well {
	wells := make([]Well, len(s.wells))
	copy(wells, s.wells)

	return wells
}

// Len returns number of wells.
func (s *System) Len() int {
	return len(s.wells)
}

// Dims returns grid dimensions and cell sizes.
func (s *System) Dims() (nx, ny int, dx, dy float64) {
	return s.nx, s.ny, s.dx, s.dy
}

// States returns the length of the state vector of the grid.
func (s *System) States() int {
	return s.nx * s.ny
}

// WellIndices returns (row, column) grid cell indices of all wells.
// Each well maps to the cell containing it: (floor(y/dy), floor(x/dx)).
// It returns error if any well lies outside of the grid.
func (s *System) WellIndices() ([][2]int, error) {
	idx := make([][2]int, len(s.wells))

	for k, w := range s.wells {
		i, j, err := s.cell(w)
		if err != nil {
			return nil, err
		}
		idx[k] = [2]int{i, j}
	}

	return idx, nil
}

// Observe samples field truth at the well cells and returns the measurements.
// If addNoise is true, independent zero-mean Gaussian noise with the well noise std is added to each measurement.
// It returns error if truth dimensions don't match the grid or if there are no wells.
func (s *System) Observe(truth mat.Matrix, addNoise bool) (*mat.VecDense, error) {
	if len(s.wells) == 0 {
		return nil, fmt.Errorf("%w: no observation wells", filter.ErrInvalidParameter)
	}

	if r, c := truth.Dims(); r != s.ny || c != s.nx {
		return nil, fmt.Errorf("%w: invalid field dimensions: [%d x %d], expected [%d x %d]",
			filter.ErrDimensionMismatch, r, c, s.ny, s.nx)
	}

	idx, err := s.WellIndices()
	if err != nil {
		return nil, err
	}

	z := mat.NewVecDense(len(idx), nil)
	for k, ij := range idx {
		z.SetVec(k, truth.At(ij[0], ij[1]))
	}

	if addNoise {
		n, err := noise.NewIndependent(s.noiseStd(), s.src)
		if err != nil {
			return nil, fmt.Errorf("failed to create measurement noise: %w", err)
		}
		z.AddVec(z, n.Sample())
	}

	return z, nil
}

// ObservationMatrix returns [wells x states] observation matrix H.
// H selects the state of the grid cell each well lies in.
// It returns error if any well lies outside of the grid or if there are no wells.
func (s *System) ObservationMatrix() (*mat.Dense, error) {
	if len(s.wells) == 0 {
		return nil, fmt.Errorf("%w: no observation wells", filter.ErrInvalidParameter)
	}

	idx, err := s.WellIndices()
	if err != nil {
		return nil, err
	}

	h := mat.NewDense(len(idx), s.States(), nil)
	for k, ij := range idx {
		h.Set(k, ij[0]*s.nx+ij[1], 1.0)
	}

	return h, nil
}

// ObservationCov returns diagonal measurement noise covariance R.
// It returns nil if there are no wells.
func (s *System) ObservationCov() *mat.DiagDense {
	if len(s.wells) == 0 {
		return nil
	}

	std := s.noiseStd()
	for i := range std {
		std[i] *= std[i]
	}

	return mat.NewDiagDense(len(std), std)
}

func (s *System) noiseStd() []float64 {
	std := make([]float64, len(s.wells))
	for i, w := range s.wells {
		std[i] = w.NoiseStd
	}

	return std
}

// cell returns grid cell indices of well w.
func (s *System) cell(w Well) (int, int, error) {
	width := float64(s.nx) * s.dx
	height := float64(s.ny) * s.dy

	if !(w.X >= 0 && w.X < width) || !(w.Y >= 0 && w.Y < height) {
		return 0, 0, &WellOutOfBoundsError{Well: w, Width: width, Height: height}
	}

	i := int(math.Floor(w.Y / s.dy))
	j := int(math.Floor(w.X / s.dx))

	// guards against rounding at the upper edge
	if i >= s.ny {
		i = s.ny - 1
	}
	if j >= s.nx {
		j = s.nx - 1
	}

	return i, j, nil
}
