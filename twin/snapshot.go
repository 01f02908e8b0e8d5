package twin

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"github.com/gwflow/go-assim/estimate"
	"gonum.org/v1/gonum/mat"
)

// Snapshot records a single assimilation cycle.
// Snapshots are appended to Twin history once per cycle and never modified afterwards.
type Snapshot struct {
	// Time is twin time at the end of the cycle
	Time float64
	// State is posterior state estimate
	State *mat.VecDense
	// StateCov is posterior state covariance
	StateCov *mat.SymDense
	// Predicted is prior state estimate
	Predicted *mat.VecDense
	// PredictedCov is prior state covariance
	PredictedCov *mat.SymDense
	// Observations are measurements assimilated in the cycle
	Observations *mat.VecDense
	// RMSE is root-mean-square error against the true field; NaN if the truth was not known
	RMSE float64
}

func newSnapshot(time float64, pred, post filter.Estimate, z mat.Vector, rmse float64) *Snapshot {
	s := &Snapshot{
		Time:         time,
		State:        copyVec(post.Val()),
		StateCov:     copySym(post.Cov()),
		Predicted:    copyVec(pred.Val()),
		PredictedCov: copySym(pred.Cov()),
		Observations: copyVec(z),
		RMSE:         rmse,
	}

	return s
}

// Val returns posterior state estimate.
func (s *Snapshot) Val() mat.Vector {
	return copyVec(s.State)
}

// Cov returns posterior state covariance.
func (s *Snapshot) Cov() mat.Symmetric {
	return copySym(s.StateCov)
}

// Prediction returns prior estimate of the cycle.
func (s *Snapshot) Prediction() filter.Estimate {
	// both fields come from a valid estimate
	e, _ := estimate.NewBaseWithCov(s.Predicted, s.PredictedCov)
	return e
}

// CycleInfo reports the outcome of a single assimilation cycle.
type CycleInfo struct {
	// Time is twin time at the end of the cycle
	Time float64
	// Predicted is prior state estimate
	Predicted *mat.VecDense
	// Updated is posterior state estimate
	Updated *mat.VecDense
	// Observations are assimilated measurements
	Observations *mat.VecDense
	// Innovation is the difference between measurements and predicted observations
	Innovation *mat.VecDense
	// Outliers are indices of wells whose innovation exceeded 3 standard deviations
	Outliers []int
	// RMSE is root-mean-square error against the true field; NaN if the truth was not known
	RMSE float64
}

// Summary summarizes Twin.
type Summary struct {
	// Mode is assimilation mode: standard or ensemble
	Mode string
	// Ensemble is ensemble size; zero in standard mode
	Ensemble int
	// States is the number of grid cells
	States int
	// Wells is the number of observation wells
	Wells int
	// Initialized reports whether initial conditions were set
	Initialized bool
	// Time is twin time
	Time float64
	// Cycles is the number of assimilation cycles in history
	Cycles int
	// LastRMSE is RMSE of the last cycle
	LastRMSE float64
	// MeanRMSE is mean RMSE of the cycles with known truth
	MeanRMSE float64
	// MeanStd is mean standard deviation of the current state estimate
	MeanStd float64
}

// String implements the Stringer interface.
func (s Summary) String() string {
	return fmt.Sprintf("Twin{\nMode=%s\nEnsemble=%d\nStates=%d\nWells=%d\nInitialized=%t\nTime=%g\nCycles=%d\nLastRMSE=%g\nMeanRMSE=%g\nMeanStd=%g\n}",
		s.Mode, s.Ensemble, s.States, s.Wells, s.Initialized, s.Time, s.Cycles, s.LastRMSE, s.MeanRMSE, s.MeanStd)
}

func meanRMSE(history []*Snapshot) float64 {
	sum, n := 0.0, 0
	for _, s := range history {
		if math.IsNaN(s.RMSE) {
			continue
		}
		sum += s.RMSE
		n++
	}

	if n == 0 {
		return math.NaN()
	}

	return sum / float64(n)
}

func copyVec(v mat.Vector) *mat.VecDense {
	c := &mat.VecDense{}
	c.CloneFromVec(v)

	return c
}

func copySym(s mat.Symmetric) *mat.SymDense {
	c := mat.NewSymDense(s.SymmetricDim(), nil)
	c.CopySym(s)

	return c
}
