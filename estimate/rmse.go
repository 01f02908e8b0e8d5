package estimate

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RMSE returns the root-mean-square error between a and b.
// It is symmetric in its arguments and exactly zero when a equals b.
// It returns error if a and b have different or zero length.
func RMSE(a, b mat.Vector) (float64, error) {
	if a.Len() != b.Len() || a.Len() == 0 {
		return 0, fmt.Errorf("%w: can't compare vectors of length %d and %d",
			filter.ErrDimensionMismatch, a.Len(), b.Len())
	}

	diff := make([]float64, a.Len())
	for i := range diff {
		diff[i] = a.AtVec(i) - b.AtVec(i)
	}

	return math.Sqrt(floats.Dot(diff, diff) / float64(len(diff))), nil
}
