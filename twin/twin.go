// Package twin implements a groundwater digital twin which keeps an estimate of
// a head field in sync with an observation well network by repeatedly stepping
// a physical model and assimilating measurements with a Kalman filter.
//
// The physical model is the only source of the field dynamics. In the standard
// mode the Kalman filter is built with identity propagation matrix, so its
// prediction step only adds process noise covariance to the state covariance.
// In the ensemble mode every ensemble member is perturbed with process noise and
// stepped through the model separately.
package twin

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/estimate"
	"github.com/gwflow/go-assim/kalman/enkf"
	"github.com/gwflow/go-assim/matrix"
	"github.com/gwflow/go-assim/noise"
	"github.com/gwflow/go-assim/observation"
	"github.com/gwflow/go-assim/rand"
	"github.com/gwflow/go-assim/smooth/rts"
	mx "github.com/milosgajdos/matrix"
	"github.com/sirupsen/logrus"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// outlierSigmas is the innovation size, in standard deviations, which is reported as outlier.
const outlierSigmas = 3.0

// Twin is groundwater digital twin.
// Twin is not safe for concurrent use.
type Twin struct {
	model  filter.Model
	obs    *observation.System
	cfg    Config
	logger *logrus.Entry
	src    exprand.Source

	// procNoise is user supplied process noise
	procNoise filter.Noise

	// fields below are set by Initialize
	assim   Assimilator
	h       *mat.Dense
	r       *mat.DiagDense
	wells   []observation.Well
	time    float64
	history []*Snapshot
}

// New creates new Twin which steps model and assimilates measurements of the wells in obs.
// Twin must be initialized with Initialize before it can assimilate measurements.
// It returns error if model or obs is nil or if cfg is invalid.
func New(model filter.Model, obs *observation.System, cfg Config, opts ...Option) (*Twin, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: missing model", filter.ErrInvalidParameter)
	}

	if obs == nil {
		return nil, fmt.Errorf("%w: missing observation system", filter.ErrInvalidParameter)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Twin{
		model: model,
		obs:   obs,
		cfg:   cfg,
		src:   rand.NewSource(cfg.Seed),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = logrus.StandardLogger().WithField("component", "twin")
	}

	return t, nil
}

// Initialize sets initial conditions of the twin and resets its time and history.
// state is either ny x nx field or a column vector of its row-major flattening.
// If cov is nil, the initial covariance is std^2 * I.
// In the ensemble mode the initial ensemble is drawn from N(state, cov).
// Initialize can be called any number of times; each call starts the twin over.
// It returns error if state or cov dimensions don't match the grid or if the well network is empty.
func (t *Twin) Initialize(state mat.Matrix, cov mat.Symmetric, std float64) error {
	nx, ny, _, _ := t.obs.Dims()
	n := t.obs.States()

	if state == nil {
		return fmt.Errorf("%w: missing initial state", filter.ErrDimensionMismatch)
	}

	var x *mat.VecDense
	switch r, c := state.Dims(); {
	case r == ny && c == nx:
		x = matrix.Flatten(state)
	case r == n && c == 1:
		x = matrix.ToVector(state)
	default:
		return fmt.Errorf("%w: invalid initial state dimensions: [%d x %d], expected [%d x %d] or [%d x 1]",
			filter.ErrDimensionMismatch, r, c, ny, nx, n)
	}

	var p *mat.SymDense
	if cov != nil {
		if cov.SymmetricDim() != n {
			return fmt.Errorf("%w: invalid initial covariance dimension: %d != %d",
				filter.ErrDimensionMismatch, cov.SymmetricDim(), n)
		}
		p = copySym(cov)
	} else {
		if std < 0 || math.IsNaN(std) {
			return fmt.Errorf("%w: invalid initial std: %f", filter.ErrInvalidParameter, std)
		}
		p = matrix.ScaledIdentity(n, std*std)
	}

	h, err := t.obs.ObservationMatrix()
	if err != nil {
		return fmt.Errorf("failed to build observation matrix: %w", err)
	}
	r := t.obs.ObservationCov()

	q, err := t.processNoise(n)
	if err != nil {
		return err
	}

	var a Assimilator
	if t.cfg.IsEnsemble() {
		a, err = t.newEnsemble(x, p, h, r, q, nx, ny)
	} else {
		a, err = newStandardAssimilator(x, p, h, r, q.Cov(), nx, ny)
	}
	if err != nil {
		return fmt.Errorf("failed to create assimilator: %w", err)
	}

	t.assim = a
	t.h = h
	t.r = r
	t.wells = t.obs.Wells()
	t.time = 0
	t.history = nil

	t.logger.WithFields(logrus.Fields{
		"mode":   t.mode(),
		"states": n,
		"wells":  len(t.wells),
	}).Debug("twin initialized")

	return nil
}

func (t *Twin) processNoise(n int) (filter.Noise, error) {
	if t.procNoise != nil {
		if t.procNoise.Cov().SymmetricDim() != n {
			return nil, fmt.Errorf("%w: invalid process noise dimension: %d != %d",
				filter.ErrDimensionMismatch, t.procNoise.Cov().SymmetricDim(), n)
		}
		return t.procNoise, nil
	}

	if t.cfg.ProcessNoiseStd == 0 {
		return noise.NewZero(n)
	}

	q, err := noise.NewIsotropic(n, t.cfg.ProcessNoiseStd, t.src)
	if err != nil {
		return nil, fmt.Errorf("failed to create process noise: %w", err)
	}

	return q, nil
}

func (t *Twin) newEnsemble(x mat.Vector, p mat.Symmetric, h mat.Matrix, r mat.Symmetric, q filter.Noise, nx, ny int) (Assimilator, error) {
	f, err := enkf.New(t.cfg.Ensemble, h, r, enkf.WithInflation(t.cfg.Inflation), enkf.WithSource(t.src))
	if err != nil {
		return nil, err
	}

	ens, err := rand.WithMeanCovN(x, p, t.cfg.Ensemble, t.src)
	if err != nil {
		return nil, fmt.Errorf("failed to draw initial ensemble: %w", err)
	}

	return newEnsembleAssimilator(f, ens, q, nx, ny)
}

// PredictStep steps the current estimate through the model by dt and returns the predicted state.
// The prediction becomes the current estimate but the twin time is not advanced.
// It returns filter.ErrNotInitialized if the twin has not been initialized.
func (t *Twin) PredictStep(dt float64) (*mat.VecDense, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	pred, err := t.assim.Predict(t.model, dt)
	if err != nil {
		return nil, err
	}

	return copyVec(pred.Val()), nil
}

// AssimilateAndUpdate runs a full assimilation cycle: it steps the current estimate through the model by dt,
// corrects the prediction with measurements z and advances the twin time by dt.
// If truth is not nil, RMSE of the updated estimate against it is recorded in the cycle history.
// If the update fails, the prediction remains the current estimate and time is not advanced.
// It returns filter.ErrNotInitialized if the twin has not been initialized.
func (t *Twin) AssimilateAndUpdate(z mat.Vector, dt float64, truth mat.Matrix) (*CycleInfo, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	if z == nil || z.Len() != len(t.wells) {
		return nil, fmt.Errorf("%w: expected %d observations", filter.ErrDimensionMismatch, len(t.wells))
	}

	var truthVec *mat.VecDense
	if truth != nil {
		nx, ny, _, _ := t.obs.Dims()
		if r, c := truth.Dims(); r != ny || c != nx {
			return nil, fmt.Errorf("%w: invalid true field dimensions: [%d x %d], expected [%d x %d]",
				filter.ErrDimensionMismatch, r, c, ny, nx)
		}
		truthVec = matrix.Flatten(truth)
	}

	pred, err := t.assim.Predict(t.model, dt)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	inn, outliers := t.checkInnovation(pred, z)

	post, err := t.assim.Update(z)
	if err != nil {
		return nil, fmt.Errorf("update failed: %w", err)
	}

	t.time += dt

	rmse := math.NaN()
	if truthVec != nil {
		rmse, err = estimate.RMSE(post.Val(), truthVec)
		if err != nil {
			return nil, err
		}
	}

	snap := newSnapshot(t.time, pred, post, z, rmse)
	t.history = append(t.history, snap)

	t.logger.WithFields(logrus.Fields{
		"sim_time": t.time,
		"rmse":     rmse,
		"wells":    len(t.wells),
	}).Debug("assimilation cycle")

	return &CycleInfo{
		Time:         t.time,
		Predicted:    copyVec(snap.Predicted),
		Updated:      copyVec(snap.State),
		Observations: copyVec(snap.Observations),
		Innovation:   inn,
		Outliers:     outliers,
		RMSE:         rmse,
	}, nil
}

// checkInnovation computes innovation of z against prediction pred and logs
// wells whose innovation exceeds outlierSigmas standard deviations of H*P*H' + R.
func (t *Twin) checkInnovation(pred filter.Estimate, z mat.Vector) (*mat.VecDense, []int) {
	x := pred.Val()
	p := pred.Cov()

	inn := mat.NewVecDense(z.Len(), nil)
	inn.MulVec(t.h, x)
	inn.SubVec(z, inn)

	// H*P*H'
	hp := &mat.Dense{}
	hp.Mul(t.h, p)
	s := &mat.Dense{}
	s.Mul(hp, t.h.T())

	var outliers []int
	for k := 0; k < inn.Len(); k++ {
		sigma := math.Sqrt(s.At(k, k) + t.r.At(k, k))
		if math.Abs(inn.AtVec(k)) <= outlierSigmas*sigma {
			continue
		}
		outliers = append(outliers, k)

		t.logger.WithFields(logrus.Fields{
			"sim_time":   t.time,
			"well":       t.wells[k].Name,
			"innovation": inn.AtVec(k),
			"sigma":      sigma,
		}).Warn("innovation outlier")
	}

	return inn, outliers
}

// RunCycles runs an assimilation cycle for every measurement vector in obs.
// truths is either nil or holds the true field of every cycle; any of them may be nil.
// It returns the information about the completed cycles and the error of the first failed one.
func (t *Twin) RunCycles(obs []mat.Vector, dt float64, truths []mat.Matrix) ([]*CycleInfo, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	if truths != nil && len(truths) != len(obs) {
		return nil, fmt.Errorf("%w: %d observation sets, %d true fields",
			filter.ErrDimensionMismatch, len(obs), len(truths))
	}

	infos := make([]*CycleInfo, 0, len(obs))
	for i, z := range obs {
		var truth mat.Matrix
		if truths != nil {
			truth = truths[i]
		}

		info, err := t.AssimilateAndUpdate(z, dt, truth)
		if err != nil {
			return infos, fmt.Errorf("cycle %d: %w", i, err)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// Forecast steps the current state estimate through the model n times by dt and returns the fields.
// No measurements are assimilated, no noise is added and the forecast uncertainty is not tracked.
// Forecast does not change the twin.
// It returns filter.ErrNotInitialized if the twin has not been initialized.
func (t *Twin) Forecast(n int, dt float64) ([]*mat.Dense, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid number of forecast steps: %d", filter.ErrInvalidParameter, n)
	}

	field, err := t.State2D()
	if err != nil {
		return nil, err
	}

	fields := make([]*mat.Dense, 0, n)
	for i := 0; i < n; i++ {
		field, err = t.model.Step(field, dt)
		if err != nil {
			return nil, fmt.Errorf("forecast step %d failed: %w", i, err)
		}
		fields = append(fields, field)
	}

	return fields, nil
}

// UncertaintyBounds returns state estimate -/+ nStd standard deviations of every grid cell.
// It returns filter.ErrNotInitialized if the twin has not been initialized.
func (t *Twin) UncertaintyBounds(nStd float64) (lower, upper *mat.VecDense, err error) {
	if t.assim == nil {
		return nil, nil, filter.ErrNotInitialized
	}

	if nStd < 0 || math.IsNaN(nStd) {
		return nil, nil, fmt.Errorf("%w: invalid number of standard deviations: %f", filter.ErrInvalidParameter, nStd)
	}

	lower, upper = estimate.Bounds(t.assim.Estimate(), nStd)

	return lower, upper, nil
}

// Estimate returns the current estimate.
func (t *Twin) Estimate() (filter.Estimate, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	return t.assim.Estimate(), nil
}

// State returns the current state estimate.
func (t *Twin) State() (*mat.VecDense, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	return copyVec(t.assim.Estimate().Val()), nil
}

// State2D returns the current state estimate as ny x nx field.
func (t *Twin) State2D() (*mat.Dense, error) {
	x, err := t.State()
	if err != nil {
		return nil, err
	}

	nx, ny, _, _ := t.obs.Dims()

	return matrix.Reshape(x, ny, nx)
}

// Cov returns the current state covariance.
func (t *Twin) Cov() (*mat.SymDense, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	return copySym(t.assim.Estimate().Cov()), nil
}

// Ensemble returns a copy of the current ensemble with one member per row.
// It returns nil in the standard mode or if the twin has not been initialized.
func (t *Twin) Ensemble() *mat.Dense {
	if e, ok := t.assim.(*ensembleAssimilator); ok {
		return e.Ensemble()
	}

	return nil
}

// Time returns twin time.
func (t *Twin) Time() float64 {
	return t.time
}

// History returns the snapshots of all assimilation cycles since the last initialization.
// The snapshots must not be modified.
func (t *Twin) History() []*Snapshot {
	h := make([]*Snapshot, len(t.history))
	copy(h, t.history)

	return h
}

// HistoryArray returns the state estimates of all the cycles stored in the rows of a matrix.
// It returns nil if the history is empty.
func (t *Twin) HistoryArray() *mat.Dense {
	if len(t.history) == 0 {
		return nil
	}

	m := mat.NewDense(len(t.history), t.history[0].State.Len(), nil)
	for i, s := range t.history {
		m.SetRow(i, s.State.RawVector().Data)
	}

	return m
}

// Smooth runs Rauch-Tung-Striebel smoother over the history and returns smoothed estimates of all the cycles.
// The smoother uses the same identity propagation as the filter.
// Ensemble covariances are usually rank deficient, smoothing them fails with filter.ErrSingular.
func (t *Twin) Smooth() ([]filter.Estimate, error) {
	if t.assim == nil {
		return nil, filter.ErrNotInitialized
	}

	if len(t.history) == 0 {
		return nil, fmt.Errorf("%w: empty history", filter.ErrInvalidParameter)
	}

	f, err := mx.NewDenseValIdentity(t.obs.States(), 1.0)
	if err != nil {
		return nil, err
	}

	s, err := rts.New(f)
	if err != nil {
		return nil, err
	}

	filtered := make([]filter.Estimate, len(t.history))
	predicted := make([]filter.Estimate, len(t.history))
	for i, snap := range t.history {
		filtered[i] = snap
		predicted[i] = snap.Prediction()
	}

	return s.Smooth(filtered, predicted)
}

// Summary returns twin summary.
func (t *Twin) Summary() Summary {
	s := Summary{
		Mode:        t.mode(),
		States:      t.obs.States(),
		Wells:       t.obs.Len(),
		Initialized: t.assim != nil,
		Time:        t.time,
		Cycles:      len(t.history),
		LastRMSE:    math.NaN(),
		MeanRMSE:    meanRMSE(t.history),
		MeanStd:     math.NaN(),
	}

	if t.cfg.IsEnsemble() {
		s.Ensemble = t.cfg.Ensemble
	}

	if len(t.history) > 0 {
		s.LastRMSE = t.history[len(t.history)-1].RMSE
	}

	if t.assim != nil {
		s.MeanStd = stat.Mean(estimate.Std(t.assim.Estimate()), nil)
	}

	return s
}

func (t *Twin) mode() string {
	if t.cfg.IsEnsemble() {
		return "ensemble"
	}

	return "standard"
}
