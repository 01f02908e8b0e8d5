package twin

import (
	filter "github.com/gwflow/go-assim"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// Option configures Twin.
type Option func(*Twin)

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(t *Twin) {
		t.logger = l
	}
}

// WithProcessNoise sets process noise which replaces the isotropic noise built from Config.
// Its size must match the number of grid cells.
func WithProcessNoise(n filter.Noise) Option {
	return func(t *Twin) {
		t.procNoise = n
	}
}

// WithSource sets the random source which overrides Config seed.
func WithSource(src rand.Source) Option {
	return func(t *Twin) {
		t.src = src
	}
}
