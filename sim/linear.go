package sim

import (
	"fmt"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Linear is a linear, continuous-time field model
//
//	dh/dt = A*h
//
// where h is the row-major flattened field. It is stepped exactly: h(t+dt) = exp(A*dt)*h(t).
type Linear struct {
	// a is system matrix
	a *mat.Dense
	// nx, ny are field dimensions
	nx, ny int
}

// NewLinear creates new Linear model of ny x nx fields with system matrix A and returns it.
// It returns error if A is not a square matrix of size nx*ny.
func NewLinear(A mat.Matrix, nx, ny int) (*Linear, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid field dimensions: [%d x %d]", filter.ErrInvalidParameter, ny, nx)
	}

	if A == nil {
		return nil, fmt.Errorf("%w: missing system matrix", filter.ErrDimensionMismatch)
	}

	r, c := A.Dims()
	if r != c || r != nx*ny {
		return nil, fmt.Errorf("%w: invalid system matrix dimensions: [%d x %d], expected %d",
			filter.ErrDimensionMismatch, r, c, nx*ny)
	}

	return &Linear{
		a:  mat.DenseCopyOf(A),
		nx: nx,
		ny: ny,
	}, nil
}

// NewDecay creates new Linear model in which every cell relaxes towards zero head with the given rate.
func NewDecay(nx, ny int, rate float64) (*Linear, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid field dimensions: [%d x %d]", filter.ErrInvalidParameter, ny, nx)
	}

	a, err := mx.NewDenseValIdentity(nx*ny, -rate)
	if err != nil {
		return nil, fmt.Errorf("failed to create system matrix: %w", err)
	}

	return NewLinear(a, nx, ny)
}

// Discretize returns discrete-time state propagation matrix F = exp(A*dt).
func (l *Linear) Discretize(dt float64) (*mat.Dense, error) {
	n, _ := l.a.Dims()

	if dt == 0 {
		return mx.NewDenseValIdentity(n, 1.0)
	}

	a := mat.NewDense(n, n, nil)
	a.Scale(dt, l.a)

	f := mat.NewDense(n, n, nil)
	f.Exp(a)

	return f, nil
}

// Step advances field by dt and returns the new field. field is not modified.
// It returns error if field dimensions don't match the model.
func (l *Linear) Step(field *mat.Dense, dt float64) (*mat.Dense, error) {
	if field == nil {
		return nil, fmt.Errorf("%w: nil field", filter.ErrDimensionMismatch)
	}

	if r, c := field.Dims(); r != l.ny || c != l.nx {
		return nil, fmt.Errorf("%w: invalid field dimensions: [%d x %d], expected [%d x %d]",
			filter.ErrDimensionMismatch, r, c, l.ny, l.nx)
	}

	f, err := l.Discretize(dt)
	if err != nil {
		return nil, err
	}

	x := mat.NewVecDense(l.nx*l.ny, nil)
	x.MulVec(f, matrix.Flatten(field))

	return matrix.Reshape(x, l.ny, l.nx)
}
