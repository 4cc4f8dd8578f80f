package feature

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FinalArray concatenates features and labels so the label is the last column.
func FinalArray(x *mat.Dense, y []float64) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("features/labels mismatch: %d/%d", rows, len(y))
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(rows, cols+1, nil)
	out.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
	out.SetCol(cols, y)
	return out, nil
}

// SplitFinalArray is the inverse of FinalArray.
func SplitFinalArray(m *mat.Dense) (*mat.Dense, []float64) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return &mat.Dense{}, nil
	}
	labels := mat.Col(nil, cols-1, m)
	if cols == 1 {
		return &mat.Dense{}, labels
	}
	x := mat.DenseCopyOf(m.Slice(0, rows, 0, cols-1))
	return x, labels
}
