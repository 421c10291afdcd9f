package attention

import (
	"fmt"
	"math"

	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

// CheckError reports which property a matrix violated.
type CheckError struct {
	Check string // "shape", "negative", "row_sum" or "causal"
	Row   int
	Col   int
	Value float64
}

func (e *CheckError) Error() string {
	switch e.Check {
	case "row_sum":
		return fmt.Sprintf("row %d sums to %v", e.Row, e.Value)
	case "shape":
		return fmt.Sprintf("matrix has %v entries for %d tokens", e.Value, e.Row)
	default:
		return fmt.Sprintf("%s check failed at (%d, %d): %v", e.Check, e.Row, e.Col, e.Value)
	}
}

// Check verifies that m is a valid pattern for dense: square, non-negative,
// rows summing to 1 within tol, and zero above the diagonal outside the
// dense block.
func Check(m *Matrix, dense tokens.Range, tol float64) error {
	if len(m.Data) != m.N*m.N {
		return &CheckError{Check: "shape", Row: m.N, Value: float64(len(m.Data))}
	}
	for i := 0; i < m.N; i++ {
		var sum float64
		for j := 0; j < m.N; j++ {
			v := m.At(i, j)
			if v < 0 || math.IsNaN(v) {
				return &CheckError{Check: "negative", Row: i, Col: j, Value: v}
			}
			if j > i && v != 0 && !(dense.Contains(i) && dense.Contains(j)) {
				return &CheckError{Check: "causal", Row: i, Col: j, Value: v}
			}
			sum += v
		}
		if math.Abs(sum-1) > tol {
			return &CheckError{Check: "row_sum", Row: i, Value: sum}
		}
	}
	return nil
}

// RoundingTolerance is the row-sum slack allowed after rounding n entries
// to the given number of decimals.
func RoundingTolerance(n, decimals int) float64 {
	return math.Pow10(-decimals) * float64(n)
}
