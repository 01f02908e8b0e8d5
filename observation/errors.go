package observation

import (
	"errors"
	"fmt"
)

// ErrWellOutOfBounds is returned when a well lies outside of the grid.
var ErrWellOutOfBounds = errors.New("observation: well out of bounds")

// WellOutOfBoundsError reports a well whose coordinates lie outside of the grid.
type WellOutOfBoundsError struct {
	// Well is the offending well
	Well Well
	// Width is grid width: nx*dx
	Width float64
	// Height is grid height: ny*dy
	Height float64
}

func (e *WellOutOfBoundsError) Error() string {
	return fmt.Sprintf("observation: well %q at (%g, %g) outside of grid [0, %g) x [0, %g)",
		e.Well.Name, e.Well.X, e.Well.Y, e.Width, e.Height)
}

// Unwrap returns ErrWellOutOfBounds.
func (e *WellOutOfBoundsError) Unwrap() error {
	return ErrWellOutOfBounds
}
