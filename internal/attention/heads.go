package attention

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

// Generator produces one pattern per head with seeds SeedBase+0..Heads-1.
type Generator struct {
	Tokens    int
	Dense     tokens.Range
	Heads     int
	SeedBase  int64
	Precision int

	// OnHead, if set, is called after each head is generated and rounded.
	OnHead func(head int, m *Matrix)
}

// Set is the output of a Generator run.
type Set struct {
	Raw     []*Matrix // normalized, unrounded
	Rounded []*Matrix // what gets serialized
	Min     float64   // over Rounded
	Max     float64   // over Rounded
}

func (g *Generator) Run() (*Set, error) {
	if g.Heads <= 0 {
		return nil, fmt.Errorf("invalid head count %d", g.Heads)
	}
	if g.Precision < 0 {
		return nil, fmt.Errorf("invalid precision %d", g.Precision)
	}

	set := &Set{
		Raw:     make([]*Matrix, 0, g.Heads),
		Rounded: make([]*Matrix, 0, g.Heads),
		Min:     math.Inf(1),
		Max:     math.Inf(-1),
	}
	for h := 0; h < g.Heads; h++ {
		m, err := Generate(g.Tokens, g.Dense, g.SeedBase+int64(h))
		if err != nil {
			return nil, fmt.Errorf("head %d: %w", h, err)
		}
		r := m.Round(g.Precision)
		lo, hi := r.MinMax()
		set.Min = math.Min(set.Min, lo)
		set.Max = math.Max(set.Max, hi)

		set.Raw = append(set.Raw, m)
		set.Rounded = append(set.Rounded, r)
		if g.OnHead != nil {
			g.OnHead(h, r)
		}
	}
	return set, nil
}

// Nested returns the rounded heads as heads x rows x cols.
func (s *Set) Nested() [][][]float64 {
	out := make([][][]float64, len(s.Rounded))
	for h, m := range s.Rounded {
		out[h] = m.Rows()
	}
	return out
}

// Fingerprint hashes the rounded heads, so two runs can be compared by a
// single value in logs.
func Fingerprint(heads []*Matrix) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	for _, m := range heads {
		binary.LittleEndian.PutUint64(buf, uint64(m.N))
		h.Write(buf)
		for _, v := range m.Data {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	return h.Sum64()
}
