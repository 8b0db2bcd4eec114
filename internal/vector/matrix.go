package vector

import "fmt"

// Matrix is a dense row-major matrix.
type Matrix [][]float64

// NewMatrix returns a rows x cols zero matrix.
func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func Identity(n int) Matrix {
	m := NewMatrix(n, n)
	for i := range n {
		m[i][i] = 1
	}
	return m
}

func (m Matrix) Rows() int { return len(m) }

func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Validate reports an error if the rows have different lengths.
func (m Matrix) Validate() error {
	for i, row := range m {
		if len(row) != m.Cols() {
			return fmt.Errorf("vector: row %d has %d columns, want %d", i, len(row), m.Cols())
		}
	}
	return nil
}

func (m Matrix) IsZero() bool {
	for _, row := range m {
		for _, x := range row {
			if x != 0 {
				return false
			}
		}
	}
	return true
}

// MulVec returns m*v.
func (m Matrix) MulVec(v Vector) Vector {
	if m.Cols() != len(v) && len(m) > 0 {
		panic(fmt.Sprintf("vector: %dx%d matrix times length %d", m.Rows(), m.Cols(), len(v)))
	}
	r := make(Vector, len(m))
	for i, row := range m {
		r[i] = Vector(row).Dot(v)
	}
	return r
}
