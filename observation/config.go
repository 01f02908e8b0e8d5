package observation

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WellConfig configures a single observation well.
type WellConfig struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	NoiseStd float64 `yaml:"noise_std"`
	Name     string  `yaml:"name,omitempty"`
}

// Config configures observation System.
type Config struct {
	NX    int          `yaml:"nx"`
	NY    int          `yaml:"ny"`
	DX    float64      `yaml:"dx"`
	DY    float64      `yaml:"dy"`
	Wells []WellConfig `yaml:"wells"`
}

// LoadConfig decodes YAML encoded Config from r.
// Unknown fields are rejected.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	c := new(Config)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("failed to decode observation config: %w", err)
	}

	return c, nil
}

// NewFromConfig creates new observation System from c and adds all the configured wells to it.
// It returns error if the grid or any of the wells is invalid.
func NewFromConfig(c *Config, opts ...Option) (*System, error) {
	s, err := New(c.NX, c.NY, c.DX, c.DY, opts...)
	if err != nil {
		return nil, err
	}

	for _, w := range c.Wells {
		if err := s.AddWell(w.X, w.Y, w.NoiseStd, w.Name); err != nil {
			return nil, err
		}
	}

	return s, nil
}
