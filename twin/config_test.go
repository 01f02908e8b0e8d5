package twin

import (
	"errors"
	"math"
	"strings"
	"testing"

	filter "github.com/gwflow/go-assim"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(DefaultConfig().Validate())
	assert.False(DefaultConfig().IsEnsemble())

	c := Config{Ensemble: 2, Inflation: 1.1, ProcessNoiseStd: 0.1}
	assert.NoError(c.Validate())
	assert.True(c.IsEnsemble())

	// standard filter ignores inflation
	assert.NoError(Config{}.Validate())
	assert.NoError(Config{Inflation: -1}.Validate())

	for _, c := range []Config{
		{Ensemble: 1, Inflation: 1},
		{Ensemble: -5, Inflation: 1},
		{Ensemble: 2, Inflation: 0},
		{Ensemble: 10, Inflation: math.Inf(1)},
		{Inflation: 1, ProcessNoiseStd: -0.1},
		{Inflation: 1, ProcessNoiseStd: math.NaN()},
	} {
		assert.True(errors.Is(c.Validate(), filter.ErrInvalidParameter), "%+v", c)
	}
}

func TestLoadConfig(t *testing.T) {
	assert := assert.New(t)

	c, err := LoadConfig(strings.NewReader("ensemble: 40\nprocess_noise_std: 0.05\nseed: 7\n"))
	assert.NoError(err)
	assert.Equal(Config{Ensemble: 40, Inflation: 1.0, ProcessNoiseStd: 0.05, Seed: 7}, c)

	_, err = LoadConfig(strings.NewReader("ensemble: 1\n"))
	assert.True(errors.Is(err, filter.ErrInvalidParameter))

	_, err = LoadConfig(strings.NewReader("ensembles: 10\n"))
	assert.Error(err)
}
