package twin

import (
	"fmt"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/estimate"
	"github.com/gwflow/go-assim/kalman/enkf"
	"github.com/gwflow/go-assim/kalman/kf"
	"github.com/gwflow/go-assim/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Assimilator owns the current estimate of the field and advances it through
// the predict and update steps of a data assimilation cycle.
type Assimilator interface {
	// Predict steps the current estimate through model m by dt.
	// The prediction becomes the current estimate and is returned.
	Predict(m filter.Model, dt float64) (filter.Estimate, error)
	// Update corrects the current estimate with measurement z.
	// The posterior becomes the current estimate and is returned.
	Update(z mat.Vector) (filter.Estimate, error)
	// Estimate returns the current estimate.
	Estimate() filter.Estimate
}

// standardAssimilator tracks the state and its covariance with the Kalman filter.
// The model supplies all the dynamics, the filter is built with identity
// propagation matrix and only adds process noise covariance to the state covariance.
type standardAssimilator struct {
	kf     *kf.KF
	nx, ny int
	x      *mat.VecDense
	p      *mat.SymDense
}

func newStandardAssimilator(x mat.Vector, p mat.Symmetric, h mat.Matrix, r, q mat.Symmetric, nx, ny int) (*standardAssimilator, error) {
	f, err := mx.NewDenseValIdentity(x.Len(), 1.0)
	if err != nil {
		return nil, fmt.Errorf("failed to create propagation matrix: %w", err)
	}

	k, err := kf.New(f, h, q, r, nil)
	if err != nil {
		return nil, err
	}

	x0 := &mat.VecDense{}
	x0.CloneFromVec(x)

	p0 := mat.NewSymDense(p.SymmetricDim(), nil)
	p0.CopySym(p)

	return &standardAssimilator{
		kf: k,
		nx: nx,
		ny: ny,
		x:  x0,
		p:  p0,
	}, nil
}

func (s *standardAssimilator) Predict(m filter.Model, dt float64) (filter.Estimate, error) {
	field, err := matrix.Reshape(s.x, s.ny, s.nx)
	if err != nil {
		return nil, err
	}

	next, err := m.Step(field, dt)
	if err != nil {
		return nil, fmt.Errorf("model step failed: %w", err)
	}

	x, p, err := s.kf.Predict(matrix.Flatten(next), s.p, nil)
	if err != nil {
		return nil, err
	}
	s.x, s.p = x, p

	return estimate.NewBaseWithCov(x, p)
}

func (s *standardAssimilator) Update(z mat.Vector) (filter.Estimate, error) {
	res, err := s.kf.Update(s.x, s.p, z)
	if err != nil {
		return nil, err
	}
	s.x, s.p = res.X, res.P

	return res, nil
}

func (s *standardAssimilator) Estimate() filter.Estimate {
	// x and p are never nil once created
	e, _ := estimate.NewBaseWithCov(s.x, s.p)
	return e
}

// ensembleAssimilator tracks an ensemble of fields with the ensemble Kalman filter.
// Every member is perturbed with process noise and stepped through the model separately.
type ensembleAssimilator struct {
	enkf   *enkf.EnKF
	nx, ny int
	ens    *mat.Dense
	noise  filter.Noise
	est    *estimate.Base
}

func newEnsembleAssimilator(f *enkf.EnKF, ens *mat.Dense, n filter.Noise, nx, ny int) (*ensembleAssimilator, error) {
	e := &ensembleAssimilator{
		enkf:  f,
		nx:    nx,
		ny:    ny,
		ens:   ens,
		noise: n,
	}

	if err := e.summarize(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *ensembleAssimilator) Predict(m filter.Model, dt float64) (filter.Estimate, error) {
	rows, cols := e.ens.Dims()
	next := mat.NewDense(rows, cols, nil)

	member := mat.NewVecDense(cols, nil)
	for i := 0; i < rows; i++ {
		member.CopyVec(e.ens.RowView(i))
		member.AddVec(member, e.noise.Sample())

		field, err := matrix.Reshape(member, e.ny, e.nx)
		if err != nil {
			return nil, err
		}

		out, err := m.Step(field, dt)
		if err != nil {
			return nil, fmt.Errorf("model step of member %d failed: %w", i, err)
		}

		if r, c := out.Dims(); r != e.ny || c != e.nx {
			return nil, fmt.Errorf("%w: model returned [%d x %d] field, expected [%d x %d]",
				filter.ErrDimensionMismatch, r, c, e.ny, e.nx)
		}

		next.SetRow(i, matrix.Flatten(out).RawVector().Data)
	}
	e.ens = next

	if err := e.summarize(); err != nil {
		return nil, err
	}

	return e.est, nil
}

func (e *ensembleAssimilator) Update(z mat.Vector) (filter.Estimate, error) {
	ens, err := e.enkf.Assimilate(e.ens, z)
	if err != nil {
		return nil, err
	}
	e.ens = ens

	if err := e.summarize(); err != nil {
		return nil, err
	}

	return e.est, nil
}

func (e *ensembleAssimilator) Estimate() filter.Estimate {
	return e.est
}

// Ensemble returns a copy of the current ensemble.
func (e *ensembleAssimilator) Ensemble() *mat.Dense {
	return mat.DenseCopyOf(e.ens)
}

func (e *ensembleAssimilator) summarize() error {
	mean, cov, err := e.enkf.MeanCov(e.ens)
	if err != nil {
		return err
	}

	est, err := estimate.NewBaseWithCov(mean, cov)
	if err != nil {
		return err
	}
	e.est = est

	return nil
}
