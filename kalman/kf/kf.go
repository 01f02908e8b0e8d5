package kf

import (
	"fmt"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter.
// KF does not store state or covariance: both are owned by the caller and
// passed in and out of every call.
type KF struct {
	// f is state propagation matrix
	f *mat.Dense
	// b is state propagation control matrix
	b *mat.Dense
	// h is observation matrix
	h *mat.Dense
	// q is state noise a.k.a. process noise covariance
	q *mat.SymDense
	// r is output noise a.k.a. measurement noise covariance
	r *mat.SymDense
	// eye is identity matrix of the state size
	eye *mat.Dense
	// identity is true if f is the identity matrix
	identity bool
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - F:      state propagation matrix [n x n]
//   - H:      observation matrix [m x n]
//   - Q:      process noise covariance [n x n]
//   - R:      measurement noise covariance [m x m]
//   - B:      optional control matrix [n x k]; nil if the system has no control input
//
// It returns error wrapping filter.ErrDimensionMismatch if the matrix dimensions are inconsistent.
func New(F, H mat.Matrix, Q, R mat.Symmetric, B mat.Matrix) (*KF, error) {
	if F == nil || H == nil || Q == nil || R == nil {
		return nil, fmt.Errorf("%w: missing system matrix", filter.ErrDimensionMismatch)
	}

	nx, cols := F.Dims()
	if nx != cols || nx <= 0 {
		return nil, fmt.Errorf("%w: invalid propagation matrix dimensions: [%d x %d]",
			filter.ErrDimensionMismatch, nx, cols)
	}

	ny, cols := H.Dims()
	if cols != nx || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid observation matrix dimensions: [%d x %d]",
			filter.ErrDimensionMismatch, ny, cols)
	}

	if Q.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid state noise dimension: %d != %d",
			filter.ErrDimensionMismatch, Q.SymmetricDim(), nx)
	}

	if R.SymmetricDim() != ny {
		return nil, fmt.Errorf("%w: invalid output noise dimension: %d != %d",
			filter.ErrDimensionMismatch, R.SymmetricDim(), ny)
	}

	var b *mat.Dense
	if B != nil {
		rows, cols := B.Dims()
		if rows != nx {
			return nil, fmt.Errorf("%w: invalid ctl propagation matrix dimensions: [%d x %d]",
				filter.ErrDimensionMismatch, rows, cols)
		}
		b = mat.DenseCopyOf(B)
	}

	q := mat.NewSymDense(nx, nil)
	q.CopySym(Q)

	r := mat.NewSymDense(ny, nil)
	r.CopySym(R)

	eye, err := mx.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity matrix: %v", err)
	}

	return &KF{
		f:        mat.DenseCopyOf(F),
		b:        b,
		h:        mat.DenseCopyOf(H),
		q:        q,
		r:        r,
		eye:      eye,
		identity: mat.Equal(F, eye),
	}, nil
}

// Predict propagates state x and its covariance p to the next step given control input u.
// It returns predicted state F*x + B*u and predicted covariance F*P*F' + Q.
// If F is the identity matrix the covariance is computed as P + Q directly.
// u is ignored if nil or if the filter has no control matrix.
// It returns error if any of the supplied values has invalid dimensions.
func (k *KF) Predict(x mat.Vector, p mat.Symmetric, u mat.Vector) (*mat.VecDense, *mat.SymDense, error) {
	nx, _ := k.f.Dims()

	if x.Len() != nx {
		return nil, nil, fmt.Errorf("%w: invalid state vector length: %d", filter.ErrDimensionMismatch, x.Len())
	}

	if p.SymmetricDim() != nx {
		return nil, nil, fmt.Errorf("%w: invalid covariance dimension: %d", filter.ErrDimensionMismatch, p.SymmetricDim())
	}

	xNext := mat.NewVecDense(nx, nil)
	if k.identity {
		xNext.CopyVec(x)
	} else {
		xNext.MulVec(k.f, x)
	}

	if u != nil && k.b != nil {
		if _, cols := k.b.Dims(); u.Len() != cols {
			return nil, nil, fmt.Errorf("%w: invalid input vector length: %d", filter.ErrDimensionMismatch, u.Len())
		}
		bu := mat.NewVecDense(nx, nil)
		bu.MulVec(k.b, u)
		xNext.AddVec(xNext, bu)
	}

	// identity propagation: P + Q
	if k.identity {
		cov := mat.NewSymDense(nx, nil)
		cov.AddSym(p, k.q)

		return xNext, cov, nil
	}

	// F*P*F' + Q
	cov := &mat.Dense{}
	cov.Mul(k.f, p)
	cov.Mul(cov, k.f.T())
	cov.Add(cov, k.q)

	return xNext, matrix.Symmetrize(cov), nil
}

// Update corrects predicted state x with covariance p using the measurement z.
// The covariance is updated using the Joseph form which keeps it symmetric positive semi-definite.
// It returns error if either of the supplied values has invalid dimensions or
// if the innovation covariance can't be inverted.
func (k *KF) Update(x mat.Vector, p mat.Symmetric, z mat.Vector) (*Result, error) {
	nx, _ := k.f.Dims()
	ny, _ := k.h.Dims()

	if x.Len() != nx {
		return nil, fmt.Errorf("%w: invalid state vector length: %d", filter.ErrDimensionMismatch, x.Len())
	}

	if p.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid covariance dimension: %d", filter.ErrDimensionMismatch, p.SymmetricDim())
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("%w: invalid measurement length: %d", filter.ErrDimensionMismatch, z.Len())
	}

	// innovation vector
	inn := Innovation(k.h, x, z)

	pxy := mat.NewDense(nx, ny, nil)
	pyy := mat.NewDense(ny, ny, nil)

	// P*H'
	pxy.Mul(p, k.h.T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy.Mul(k.h, pxy)
	pyy.Add(pyy, k.r)

	// calculate Kalman gain
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("%w: failed to invert innovation covariance: %v", filter.ErrSingular, err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	// update state x
	xNext := mat.NewVecDense(nx, nil)
	xNext.MulVec(gain, inn)
	xNext.AddVec(x, xNext)

	// Joseph form update
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, k.h)
	// eye - K*H
	a.Sub(k.eye, a)

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r)
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	// (eye - K*H)*P*(eye - K*H)'
	apa := &mat.Dense{}
	apa.Mul(a, p)
	apa.Mul(apa, a.T())

	pCorr := &mat.Dense{}
	pCorr.Add(apa, krk)

	xPred := mat.VecDenseCopyOf(x)
	pPred := mat.NewSymDense(nx, nil)
	pPred.CopySym(p)

	return &Result{
		XPred:         xPred,
		PPred:         pPred,
		X:             xNext,
		P:             matrix.Symmetrize(pCorr),
		Gain:          gain,
		Innovation:    inn,
		InnovationCov: matrix.Symmetrize(pyy),
	}, nil
}

// Run runs one step of KF for given state x, covariance p, measurement z and control input u.
// It propagates x to the next step and corrects it using measurement z.
// It returns error if it either fails to propagate or correct state x.
func (k *KF) Run(x mat.Vector, p mat.Symmetric, z, u mat.Vector) (*Result, error) {
	xPred, pPred, err := k.Predict(x, p, u)
	if err != nil {
		return nil, err
	}

	return k.Update(xPred, pPred, z)
}

// Dims returns state and measurement dimensions.
func (k *KF) Dims() (nx, ny int) {
	nx, _ = k.f.Dims()
	ny, _ = k.h.Dims()

	return nx, ny
}

// StateMatrix returns state propagation matrix
func (k *KF) StateMatrix() mat.Matrix {
	return mat.DenseCopyOf(k.f)
}

// OutputMatrix returns observation matrix
func (k *KF) OutputMatrix() mat.Matrix {
	return mat.DenseCopyOf(k.h)
}

// StateNoiseCov returns process noise covariance
func (k *KF) StateNoiseCov() mat.Symmetric {
	q := mat.NewSymDense(k.q.SymmetricDim(), nil)
	q.CopySym(k.q)

	return q
}

// OutputNoiseCov returns measurement noise covariance
func (k *KF) OutputNoiseCov() mat.Symmetric {
	r := mat.NewSymDense(k.r.SymmetricDim(), nil)
	r.CopySym(k.r)

	return r
}

// Innovation returns the difference between measurement z and the observed state H*x.
func Innovation(h mat.Matrix, x, z mat.Vector) *mat.VecDense {
	ny, _ := h.Dims()

	inn := mat.NewVecDense(ny, nil)
	inn.MulVec(h, x)
	inn.SubVec(z, inn)

	return inn
}
