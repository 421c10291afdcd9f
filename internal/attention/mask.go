package attention

import (
	"fmt"
	"math/rand"

	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

// Generate builds one normalized attention pattern over n tokens.
//
// Draw order is fixed so a seed always reproduces the same matrix: n*n
// uniform values row-major (entries above the diagonal are discarded),
// then dense.Len()^2 values row-major for the dense block.
func Generate(n int, dense tokens.Range, seed int64) (*Matrix, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid token count %d", n)
	}
	if dense.Len() > 0 && (dense.Start < 0 || dense.End > n) {
		return nil, fmt.Errorf("dense range [%d,%d) outside [0,%d)", dense.Start, dense.End, n)
	}

	rng := rand.New(rand.NewSource(seed))
	m := NewMatrix(n)

	// Causal lower triangle.
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := rng.Float64()
			if j <= i {
				m.Set(i, j, v)
			}
		}
	}

	// Image block attends in both directions.
	for i := dense.Start; i < dense.End; i++ {
		for j := dense.Start; j < dense.End; j++ {
			m.Set(i, j, rng.Float64())
		}
	}

	if err := m.NormalizeRows(); err != nil {
		return nil, fmt.Errorf("seed %d: %w", seed, err)
	}
	return m, nil
}
