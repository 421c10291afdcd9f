package attention

import (
	"errors"
	"math"
	"testing"

	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

func rowSum(m *Matrix, i int) float64 {
	var s float64
	for _, v := range m.Row(i) {
		s += v
	}
	return s
}

func TestGenerateRowsSumToOne(t *testing.T) {
	m, err := Generate(12, tokens.Range{Start: 0, End: 6}, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < m.N; i++ {
		if s := rowSum(m, i); math.Abs(s-1) > 1e-12 {
			t.Errorf("row %d sums to %v", i, s)
		}
	}
}

func TestGenerateCausalOutsideDenseBlock(t *testing.T) {
	dense := tokens.Range{Start: 1, End: 5}
	m, err := Generate(9, dense, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < m.N; i++ {
		for j := i + 1; j < m.N; j++ {
			if dense.Contains(i) && dense.Contains(j) {
				continue
			}
			if v := m.At(i, j); v != 0 {
				t.Errorf("(%d,%d) = %v, want 0", i, j, v)
			}
		}
	}
}

func TestGenerateDenseBlockIsNonCausal(t *testing.T) {
	dense := tokens.Range{Start: 0, End: 6}
	m, err := Generate(12, dense, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	nonZero := 0
	for i := dense.Start; i < dense.End; i++ {
		for j := i + 1; j < dense.End; j++ {
			if m.At(i, j) > 0 {
				nonZero++
			}
		}
	}
	// 15 strict-upper entries in a 6x6 block, each a positive draw.
	if nonZero != 15 {
		t.Errorf("expected 15 non-zero upper entries in dense block, got %d", nonZero)
	}
}

func TestGenerateClassRowAttendsToImage(t *testing.T) {
	seq, err := tokens.Build(tokens.Spec{
		Rows:       12,
		Cols:       12,
		RolePrefix: "user:",
		ClassToken: "[CLS]",
		Trailing:   []string{" Describe", " the", " image"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dense := seq.DenseRange()
	if dense.Start != seq.ClassIndex {
		t.Fatalf("dense block %+v does not start at class token %d", dense, seq.ClassIndex)
	}

	m, err := Generate(seq.Len(), dense, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	row := seq.ClassIndex
	for j := row + 1; j < dense.End; j++ {
		if m.At(row, j) <= 0 {
			t.Errorf("class row (%d,%d) = %v, want > 0", row, j, m.At(row, j))
		}
	}
	for j := dense.End; j < m.N; j++ {
		if v := m.At(row, j); v != 0 {
			t.Errorf("class row (%d,%d) = %v, want 0 past the image block", row, j, v)
		}
	}
	if v := m.At(0, row); v != 0 {
		t.Errorf("prefix row attends to class token: %v", v)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	dense := tokens.Range{Start: 2, End: 8}
	a, err := Generate(10, dense, 42)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := Generate(10, dense, 42)
	c, _ := Generate(10, dense, 43)

	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("same seed differs at %d: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
	if Fingerprint([]*Matrix{a}) == Fingerprint([]*Matrix{c}) {
		t.Error("different seeds produced identical fingerprints")
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := Generate(0, tokens.Range{}, 0); err == nil {
		t.Error("expected error for zero tokens")
	}
	if _, err := Generate(4, tokens.Range{Start: 2, End: 6}, 0); err == nil {
		t.Error("expected error for dense range past the end")
	}
}

func TestNormalizeRowsPerRow(t *testing.T) {
	m := &Matrix{N: 2, Data: []float64{1, 3, 2, 2}}
	if err := m.NormalizeRows(); err != nil {
		t.Fatalf("NormalizeRows: %v", err)
	}
	want := []float64{0.25, 0.75, 0.5, 0.5}
	for i, v := range want {
		if m.Data[i] != v {
			t.Errorf("Data[%d] = %v, want %v", i, m.Data[i], v)
		}
	}

	zero := &Matrix{N: 2, Data: []float64{1, 0, 0, 0}}
	if err := zero.NormalizeRows(); err == nil {
		t.Error("expected error for zero row")
	}
}

func TestRound(t *testing.T) {
	m := &Matrix{N: 2, Data: []float64{0.12345, 0.87655, 0.3336, 0.6664}}
	r := m.Round(3)
	want := []float64{0.123, 0.877, 0.334, 0.666}
	for i, v := range want {
		if math.Abs(r.Data[i]-v) > 1e-12 {
			t.Errorf("Round Data[%d] = %v, want %v", i, r.Data[i], v)
		}
	}
	if m.Data[0] != 0.12345 {
		t.Error("Round modified the source matrix")
	}
}

func TestGeneratorCaptionExample(t *testing.T) {
	seq, err := tokens.Build(tokens.Spec{
		Rows:     2,
		Cols:     3,
		Trailing: []string{" What", " is", " in", " the", " image", " ?"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var seen []int
	g := &Generator{
		Tokens:    seq.Len(),
		Dense:     seq.DenseRange(),
		Heads:     6,
		Precision: 3,
		OnHead:    func(h int, _ *Matrix) { seen = append(seen, h) },
	}
	set, err := g.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(set.Rounded) != 6 || len(set.Raw) != 6 {
		t.Fatalf("expected 6 heads, got %d/%d", len(set.Rounded), len(set.Raw))
	}
	if len(seen) != 6 || seen[5] != 5 {
		t.Errorf("OnHead calls = %v", seen)
	}

	tol := RoundingTolerance(seq.Len(), 3)
	for h, m := range set.Rounded {
		if m.N != 12 {
			t.Fatalf("head %d has size %d", h, m.N)
		}
		if err := Check(m, seq.DenseRange(), tol); err != nil {
			t.Errorf("head %d: %v", h, err)
		}
		// Head h is seeded with h.
		want, _ := Generate(12, seq.DenseRange(), int64(h))
		if Fingerprint([]*Matrix{want.Round(3)}) != Fingerprint([]*Matrix{m}) {
			t.Errorf("head %d not reproducible from seed %d", h, h)
		}
		lo, hi := m.MinMax()
		if lo < set.Min || hi > set.Max {
			t.Errorf("head %d range [%v,%v] outside global [%v,%v]", h, lo, hi, set.Min, set.Max)
		}
	}
	if set.Min < 0 || set.Max > 1 || set.Min > set.Max {
		t.Errorf("global range [%v,%v]", set.Min, set.Max)
	}

	nested := set.Nested()
	if len(nested) != 6 || len(nested[0]) != 12 || len(nested[0][0]) != 12 {
		t.Errorf("nested shape %dx%dx%d", len(nested), len(nested[0]), len(nested[0][0]))
	}
}

func TestGeneratorSeedBase(t *testing.T) {
	base := &Generator{Tokens: 5, Dense: tokens.Range{Start: 1, End: 3}, Heads: 3, Precision: 3}
	shifted := &Generator{Tokens: 5, Dense: tokens.Range{Start: 1, End: 3}, Heads: 2, SeedBase: 1, Precision: 3}

	a, err := base.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := shifted.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if Fingerprint(a.Rounded[1:]) != Fingerprint(b.Rounded) {
		t.Error("SeedBase=1 should reproduce heads 1..2 of SeedBase=0")
	}
}

func TestGeneratorErrors(t *testing.T) {
	if _, err := (&Generator{Tokens: 4, Heads: 0}).Run(); err == nil {
		t.Error("expected error for zero heads")
	}
	if _, err := (&Generator{Tokens: 4, Heads: 1, Precision: -1}).Run(); err == nil {
		t.Error("expected error for negative precision")
	}
	if _, err := (&Generator{Tokens: 0, Heads: 1}).Run(); err == nil {
		t.Error("expected error for zero tokens")
	}
}

func TestCheck(t *testing.T) {
	dense := tokens.Range{Start: 0, End: 2}
	tests := []struct {
		name  string
		m     *Matrix
		check string
	}{
		{"valid dense", &Matrix{N: 3, Data: []float64{0.5, 0.5, 0, 0.5, 0.5, 0, 0.2, 0.3, 0.5}}, ""},
		{"shape", &Matrix{N: 3, Data: []float64{1}}, "shape"},
		{"negative", &Matrix{N: 2, Data: []float64{1, 0, -0.5, 1.5}}, "negative"},
		{"causal", &Matrix{N: 3, Data: []float64{1, 0, 0, 0.5, 0, 0.5, 0.2, 0.3, 0.5}}, "causal"},
		{"row sum", &Matrix{N: 2, Data: []float64{0.5, 0.2, 0.5, 0.5}}, "row_sum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.m, dense, 0.01)
			if tt.check == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *CheckError
			if !errors.As(err, &ce) {
				t.Fatalf("expected CheckError, got %v", err)
			}
			if ce.Check != tt.check {
				t.Errorf("check = %q, want %q", ce.Check, tt.check)
			}
		})
	}
}
