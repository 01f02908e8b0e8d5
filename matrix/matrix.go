// Package matrix provides dense matrix helpers shared by the filters.
package matrix

import (
	"fmt"
	"math"

	filter "github.com/gwflow/go-assim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ColMeans returns a slice containing m column means.
// It panics if m is nil.
func ColMeans(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	means := make([]float64, cols)

	for i := 0; i < rows; i++ {
		floats.Add(means, m.RawRowView(i))
	}
	floats.Scale(1/float64(rows), means)

	return means
}

// Flatten returns a row-major copy of m as a vector.
// Element (i, j) of m is stored at index i*cols + j.
func Flatten(m mat.Matrix) *mat.VecDense {
	rows, cols := m.Dims()
	v := mat.NewVecDense(rows*cols, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v.SetVec(i*cols+j, m.At(i, j))
		}
	}

	return v
}

// Reshape returns a rows x cols matrix filled row-major from v.
// It returns error if the length of v is not rows*cols.
func Reshape(v mat.Vector, rows, cols int) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 || v.Len() != rows*cols {
		return nil, fmt.Errorf("%w: can't reshape vector of length %d to [%d x %d]",
			filter.ErrDimensionMismatch, v.Len(), rows, cols)
	}

	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}

	return mat.NewDense(rows, cols, data), nil
}

// ToVector converts a field into a state vector.
// Column vectors are copied as they are, any other matrix is flattened row-major.
func ToVector(m mat.Matrix) *mat.VecDense {
	if v, ok := m.(mat.Vector); ok {
		return mat.VecDenseCopyOf(v)
	}

	if _, cols := m.Dims(); cols == 1 {
		return mat.VecDenseCopyOf(mat.DenseCopyOf(m).ColView(0))
	}

	return Flatten(m)
}

// Symmetrize copies the upper triangle of the square matrix m into a new symmetric matrix.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic(mat.ErrShape)
	}

	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}

	return sym
}

// ScaledIdentity returns n x n symmetric matrix with val on its diagonal.
func ScaledIdentity(n int, val float64) *mat.SymDense {
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, val)
	}

	return sym
}

// IsSymmetric reports whether the square matrix m is symmetric within tol.
func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}

	return true
}

// IsDiagonal reports whether all off-diagonal elements of m are zero.
func IsDiagonal(m mat.Matrix) bool {
	if _, ok := m.(mat.Diagonal); ok {
		return true
	}

	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && m.At(i, j) != 0 {
				return false
			}
		}
	}

	return true
}
