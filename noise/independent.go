package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Independent is zero-mean Gaussian noise with mutually independent components.
// Unlike Gaussian it accepts components with zero standard deviation.
type Independent struct {
	// dists stores one normal distribution per component
	dists []distuv.Normal
	// std stores component standard deviations
	std []float64
	// src is the random source; nil means time-seeded
	src rand.Source
}

// NewIndependent creates new Independent noise with the given component standard deviations.
// Samples are drawn from src; if src is nil the noise is seeded with the current time.
// It returns error if std is empty or if any of its values is negative.
func NewIndependent(std []float64, src rand.Source) (*Independent, error) {
	if len(std) == 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", len(std))
	}

	for i, s := range std {
		if s < 0 {
			return nil, fmt.Errorf("invalid standard deviation of component %d: %f", i, s)
		}
	}

	n := &Independent{
		std: make([]float64, len(std)),
		src: src,
	}
	copy(n.std, std)
	n.dists = newIndependentDists(n.std, src)

	return n, nil
}

// NewIsotropic creates new Independent noise of the given size whose components share std.
func NewIsotropic(size int, std float64, src rand.Source) (*Independent, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", size)
	}

	s := make([]float64, size)
	for i := range s {
		s[i] = std
	}

	return NewIndependent(s, src)
}

// Sample generates a sample from Independent noise and returns it.
func (n *Independent) Sample() mat.Vector {
	sample := mat.NewVecDense(len(n.dists), nil)
	for i := range n.dists {
		sample.SetVec(i, n.dists[i].Rand())
	}

	return sample
}

// Cov returns diagonal covariance matrix of Independent noise.
func (n *Independent) Cov() mat.Symmetric {
	cov := mat.NewSymDense(len(n.std), nil)
	for i, s := range n.std {
		cov.SetSym(i, i, s*s)
	}

	return cov
}

// Mean returns Independent noise mean: it's always zero.
func (n *Independent) Mean() []float64 {
	return make([]float64, len(n.std))
}

// Std returns component standard deviations.
func (n *Independent) Std() []float64 {
	std := make([]float64, len(n.std))
	copy(std, n.std)

	return std
}

// Reset resets Independent noise: it reseeds the distributions unless a source was given.
func (n *Independent) Reset() error {
	n.dists = newIndependentDists(n.std, n.src)

	return nil
}

func newIndependentDists(std []float64, src rand.Source) []distuv.Normal {
	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	dists := make([]distuv.Normal, len(std))
	for i, s := range std {
		dists[i] = distuv.Normal{Mu: 0, Sigma: s, Src: src}
	}

	return dists
}

// String implements the Stringer interface.
func (n *Independent) String() string {
	return fmt.Sprintf("Independent{\nStd=%v\n}", n.std)
}
