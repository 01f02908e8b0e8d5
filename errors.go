package filter

import "errors"

var (
	// ErrDimensionMismatch is returned when matrix or vector dimensions are inconsistent.
	ErrDimensionMismatch = errors.New("filter: dimension mismatch")

	// ErrSingular is returned when a matrix which must be inverted is singular or ill-conditioned.
	ErrSingular = errors.New("filter: singular matrix")

	// ErrNotInitialized is returned when an operation requires initial conditions which were never set.
	ErrNotInitialized = errors.New("filter: not initialized")

	// ErrInvalidParameter is returned when a parameter is outside of its valid range.
	ErrInvalidParameter = errors.New("filter: invalid parameter")
)
