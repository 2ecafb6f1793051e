package hedonic

import (
	"fmt"
	"math"
)

// matrix is a small dense row-major matrix sized for hedonic design
// matrices (tens of columns, hundreds of rows). It exists so the ridge
// solve can be unit tested in isolation from feature extraction.
type matrix struct {
	rows, cols int
	data       []float64
}

func newMatrix(rows, cols int) *matrix {
	return &matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

func (m *matrix) at(i, j int) float64 {
	return m.data[i*m.cols+j]
}

func (m *matrix) set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

// normalEquations computes XᵀX + αI and Xᵀy for the ridge system. The
// first column of X is the intercept and stays unpenalized.
func normalEquations(x *matrix, y []float64, alpha float64) (*matrix, []float64) {
	p := x.cols
	a := newMatrix(p, p)
	b := make([]float64, p)

	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			var sum float64
			for r := 0; r < x.rows; r++ {
				sum += x.at(r, i) * x.at(r, j)
			}
			a.set(i, j, sum)
			a.set(j, i, sum)
		}
		var sum float64
		for r := 0; r < x.rows; r++ {
			sum += x.at(r, i) * y[r]
		}
		b[i] = sum
	}

	// Penalty skips the intercept column.
	for i := 1; i < p; i++ {
		a.set(i, i, a.at(i, i)+alpha)
	}

	return a, b
}

// solveLinear solves a·x = b in place by Gaussian elimination with
// partial pivoting. It returns an error for singular or numerically
// degenerate systems.
func solveLinear(a *matrix, b []float64) ([]float64, error) {
	n := a.rows
	if a.cols != n || len(b) != n {
		return nil, fmt.Errorf("non-square system: %dx%d with %d targets", a.rows, a.cols, len(b))
	}

	for col := 0; col < n; col++ {
		// Partial pivot: largest absolute value in this column.
		pivot := col
		maxAbs := math.Abs(a.at(col, col))
		for r := col + 1; r < n; r++ {
			if v := math.Abs(a.at(r, col)); v > maxAbs {
				maxAbs = v
				pivot = r
			}
		}
		if maxAbs < 1e-12 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		if pivot != col {
			swapRows(a, pivot, col)
			b[pivot], b[col] = b[col], b[pivot]
		}

		for r := col + 1; r < n; r++ {
			factor := a.at(r, col) / a.at(col, col)
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a.set(r, c, a.at(r, c)-factor*a.at(col, c))
			}
			b[r] -= factor * b[col]
		}
	}

	// Back substitution.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a.at(i, j) * x[j]
		}
		x[i] = sum / a.at(i, i)
	}

	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite coefficient in solution")
		}
	}
	return x, nil
}

func swapRows(m *matrix, i, j int) {
	ri := m.data[i*m.cols : (i+1)*m.cols]
	rj := m.data[j*m.cols : (j+1)*m.cols]
	for c := range ri {
		ri[c], rj[c] = rj[c], ri[c]
	}
}
