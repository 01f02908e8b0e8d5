// Package sim provides synthetic physical models of groundwater head fields and plots of their simulations.
package sim

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"gonum.org/v1/gonum/mat"
)

// Boundary is a boundary condition of the Diffusion model.
type Boundary int

const (
	// NoFlow keeps zero head gradient across the grid boundary.
	NoFlow Boundary = iota
	// FixedHead keeps head of the boundary cells at their initial values.
	FixedHead
)

// String implements the Stringer interface.
func (b Boundary) String() string {
	switch b {
	case NoFlow:
		return "no-flow"
	case FixedHead:
		return "fixed-head"
	default:
		return fmt.Sprintf("Boundary(%d)", int(b))
	}
}

// DiffusionOption configures Diffusion.
type DiffusionOption func(*Diffusion)

// WithBoundary sets the boundary condition.
func WithBoundary(b Boundary) DiffusionOption {
	return func(d *Diffusion) {
		d.boundary = b
	}
}

// WithRecharge sets the source term: head change rate per cell.
func WithRecharge(w mat.Matrix) DiffusionOption {
	return func(d *Diffusion) {
		d.recharge = mat.DenseCopyOf(w)
	}
}

// Diffusion is a groundwater head model on a regular grid:
//
//	dh/dt = D*(d2h/dx2 + d2h/dy2) + w
//
// It is integrated with the explicit forward-time centred-space scheme.
// Steps longer than the stability limit are split into equal sub-steps.
type Diffusion struct {
	// d is hydraulic diffusivity: transmissivity over storativity
	d float64
	// dx, dy are cell sizes
	dx, dy float64
	// boundary is boundary condition
	boundary Boundary
	// recharge is optional source term
	recharge *mat.Dense
}

// NewDiffusion creates new Diffusion model with diffusivity d on a grid with cell size dx x dy and returns it.
// It returns error if any of the parameters is not positive or the boundary is unknown.
func NewDiffusion(d, dx, dy float64, opts ...DiffusionOption) (*Diffusion, error) {
	if !(d > 0) || math.IsInf(d, 0) {
		return nil, fmt.Errorf("%w: invalid diffusivity: %f", filter.ErrInvalidParameter, d)
	}

	if !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("%w: invalid cell size: %f x %f", filter.ErrInvalidParameter, dx, dy)
	}

	m := &Diffusion{
		d:  d,
		dx: dx,
		dy: dy,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.boundary != NoFlow && m.boundary != FixedHead {
		return nil, fmt.Errorf("%w: unknown boundary: %s", filter.ErrInvalidParameter, m.boundary)
	}

	return m, nil
}

// MaxStep returns the longest stable integration step: min(dx^2, dy^2)/(4*D).
func (m *Diffusion) MaxStep() float64 {
	return math.Min(m.dx*m.dx, m.dy*m.dy) / (4 * m.d)
}

// Boundary returns the boundary condition.
func (m *Diffusion) Boundary() Boundary {
	return m.boundary
}

// Step advances field by dt and returns the new field. field is not modified.
// It returns error if dt is negative or if the recharge does not match field dimensions.
func (m *Diffusion) Step(field *mat.Dense, dt float64) (*mat.Dense, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: nil field", filter.ErrDimensionMismatch)
	}

	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: invalid time step: %f", filter.ErrInvalidParameter, dt)
	}

	ny, nx := field.Dims()
	if m.recharge != nil {
		if r, c := m.recharge.Dims(); r != ny || c != nx {
			return nil, fmt.Errorf("%w: recharge [%d x %d] does not match field [%d x %d]",
				filter.ErrDimensionMismatch, r, c, ny, nx)
		}
	}

	cur := mat.DenseCopyOf(field)
	if dt == 0 {
		return cur, nil
	}

	n := int(math.Ceil(dt / m.MaxStep()))
	h := dt / float64(n)

	next := mat.NewDense(ny, nx, nil)
	for k := 0; k < n; k++ {
		m.substep(next, cur, h)
		cur, next = next, cur
	}

	return cur, nil
}

func (m *Diffusion) substep(dst, src *mat.Dense, h float64) {
	ny, nx := src.Dims()
	cx := m.d / (m.dx * m.dx)
	cy := m.d / (m.dy * m.dy)

	for i := 0; i < ny; i++ {
		for j := 0; j < nx; j++ {
			v := src.At(i, j)

			if m.boundary == FixedHead && (i == 0 || j == 0 || i == ny-1 || j == nx-1) {
				dst.Set(i, j, v)
				continue
			}

			// missing neighbours mirror the cell itself: zero flux across the boundary
			west, east, north, south := v, v, v, v
			if j > 0 {
				west = src.At(i, j-1)
			}
			if j < nx-1 {
				east = src.At(i, j+1)
			}
			if i > 0 {
				north = src.At(i-1, j)
			}
			if i < ny-1 {
				south = src.At(i+1, j)
			}

			rate := cx*(west-2*v+east) + cy*(north-2*v+south)
			if m.recharge != nil {
				rate += m.recharge.At(i, j)
			}

			dst.Set(i, j, v+h*rate)
		}
	}
}
