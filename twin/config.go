package twin

import (
	"fmt"
	"io"
	"math"

	filter "github.com/gwflow/go-assim"
	"gopkg.in/yaml.v3"
)

// Config configures Twin.
type Config struct {
	// Ensemble is ensemble size: 0 selects the standard Kalman filter, at least 2 the ensemble one
	Ensemble int `yaml:"ensemble"`
	// Inflation is multiplicative ensemble covariance inflation factor; ignored by the standard filter
	Inflation float64 `yaml:"inflation"`
	// ProcessNoiseStd is standard deviation of the state noise of each grid cell
	ProcessNoiseStd float64 `yaml:"process_noise_std"`
	// Seed seeds random number generation; zero seeds it with the current time
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns default Config: standard Kalman filter without process noise.
func DefaultConfig() Config {
	return Config{
		Ensemble:  0,
		Inflation: 1.0,
	}
}

// Validate returns error if c is not a valid Twin configuration.
func (c Config) Validate() error {
	if c.Ensemble < 0 || c.Ensemble == 1 {
		return fmt.Errorf("%w: invalid ensemble size: %d", filter.ErrInvalidParameter, c.Ensemble)
	}

	// inflation only applies to the ensemble
	if c.IsEnsemble() && (!(c.Inflation > 0) || math.IsInf(c.Inflation, 0)) {
		return fmt.Errorf("%w: invalid inflation: %f", filter.ErrInvalidParameter, c.Inflation)
	}

	if c.ProcessNoiseStd < 0 || math.IsNaN(c.ProcessNoiseStd) || math.IsInf(c.ProcessNoiseStd, 0) {
		return fmt.Errorf("%w: invalid process noise std: %f", filter.ErrInvalidParameter, c.ProcessNoiseStd)
	}

	return nil
}

// IsEnsemble returns true if c configures the ensemble Kalman filter.
func (c Config) IsEnsemble() bool {
	return c.Ensemble >= 2
}

// LoadConfig decodes YAML encoded Config from r on top of DefaultConfig and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	c := DefaultConfig()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("failed to decode twin config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}
