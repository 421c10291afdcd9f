// Package attention generates synthetic multi-head attention patterns:
// causal random matrices with a dense (non-causal) image block, row
// normalized into probability distributions.
package attention

import (
	"fmt"
	"math"
)

// Matrix is a square N x N matrix stored row-major.
// Row i is the destination token, column j the source token.
type Matrix struct {
	N    int
	Data []float64
}

func NewMatrix(n int) *Matrix {
	return &Matrix{N: n, Data: make([]float64, n*n)}
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.N+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.N+j] = v
}

// Row returns a view into row i.
func (m *Matrix) Row(i int) []float64 {
	return m.Data[i*m.N : (i+1)*m.N]
}

// Rows copies the matrix into nested slices, the shape the JSON consumer reads.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.N)
	for i := range out {
		out[i] = append([]float64(nil), m.Row(i)...)
	}
	return out
}

func (m *Matrix) Clone() *Matrix {
	return &Matrix{N: m.N, Data: append([]float64(nil), m.Data...)}
}

// NormalizeRows divides each row by its own sum.
func (m *Matrix) NormalizeRows() error {
	for i := 0; i < m.N; i++ {
		row := m.Row(i)
		var sum float64
		for _, v := range row {
			sum += v
		}
		if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
			return fmt.Errorf("row %d has non-positive sum %v", i, sum)
		}
		for j := range row {
			row[j] /= sum
		}
	}
	return nil
}

// Round returns a copy with every entry rounded to the given number of
// decimal digits.
func (m *Matrix) Round(decimals int) *Matrix {
	out := m.Clone()
	scale := math.Pow10(decimals)
	for i, v := range out.Data {
		out.Data[i] = math.Round(v*scale) / scale
	}
	return out
}

func (m *Matrix) MinMax() (min, max float64) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	min, max = m.Data[0], m.Data[0]
	for _, v := range m.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
