package filter

import "gonum.org/v1/gonum/mat"

// Model is a physical model of a spatial scalar field such as groundwater head.
type Model interface {
	// Step advances field by the time step dt and returns the new field.
	// Implementations must not modify field.
	Step(field *mat.Dense, dt float64) (*mat.Dense, error)
}

// ModelFunc is an adapter which allows to use ordinary functions as Model.
type ModelFunc func(field *mat.Dense, dt float64) (*mat.Dense, error)

// Step calls f(field, dt).
func (f ModelFunc) Step(field *mat.Dense, dt float64) (*mat.Dense, error) {
	return f(field, dt)
}

// Estimate is a state estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is dynamical system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}
