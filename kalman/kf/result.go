package kf

import "gonum.org/v1/gonum/mat"

// Result holds all intermediate quantities of a single KF step.
type Result struct {
	// XPred is predicted state
	XPred *mat.VecDense
	// PPred is predicted covariance
	PPred *mat.SymDense
	// X is corrected state
	X *mat.VecDense
	// P is corrected covariance
	P *mat.SymDense
	// Gain is Kalman gain
	Gain *mat.Dense
	// Innovation is measurement innovation z - H*XPred
	Innovation *mat.VecDense
	// InnovationCov is innovation covariance H*PPred*H' + R
	InnovationCov *mat.SymDense
}

// Val returns corrected state.
// It implements filter.Estimate.
func (r *Result) Val() mat.Vector {
	return mat.VecDenseCopyOf(r.X)
}

// Cov returns corrected covariance.
// It implements filter.Estimate.
func (r *Result) Cov() mat.Symmetric {
	cov := mat.NewSymDense(r.P.SymmetricDim(), nil)
	cov.CopySym(r.P)

	return cov
}
