// Package fixture serializes generated attention patterns into the files the
// attention-heads visualization reads.
package fixture

import (
	"fmt"

	"github.com/23skdu/longbow-attnmock/internal/attention"
	"github.com/23skdu/longbow-attnmock/internal/tokens"
)

// Record is the single-file fixture. Field names are what the front-end
// component reads.
type Record struct {
	Tokens              []string      `json:"tokens"`
	Attention           [][][]float64 `json:"attention"`
	AttentionMin        float64       `json:"attention_min"`
	AttentionMax        float64       `json:"attention_max"`
	ImageGridDimensions *[2]int       `json:"image_grid_dimensions,omitempty"`
	ImgURL              string        `json:"img_url,omitempty"`
	ImageTokensStart    *int          `json:"image_tokens_start,omitempty"`
}

// TokensFile is the token half of a split fixture.
type TokensFile struct {
	Tokens              []string `json:"tokens"`
	ImageGridDimensions *[2]int  `json:"image_grid_dimensions,omitempty"`
	ImgURL              string   `json:"img_url,omitempty"`
	ImageTokensStart    *int     `json:"image_tokens_start,omitempty"`
}

// AttentionFile is the attention half of a split fixture.
type AttentionFile struct {
	Attention    [][][]float64 `json:"attention"`
	AttentionMin float64       `json:"attention_min"`
	AttentionMax float64       `json:"attention_max"`
}

func NewRecord(seq *tokens.Sequence, set *attention.Set, imgURL string) *Record {
	rec := &Record{
		Tokens:       append([]string(nil), seq.Tokens...),
		Attention:    set.Nested(),
		AttentionMin: set.Min,
		AttentionMax: set.Max,
		ImgURL:       imgURL,
	}
	if seq.HasGrid() {
		rec.ImageGridDimensions = &[2]int{seq.GridRows, seq.GridCols}
	}
	if seq.ImageCount > 0 {
		start := seq.ImageStart
		rec.ImageTokensStart = &start
	}
	return rec
}

func (r *Record) tokensFile() *TokensFile {
	return &TokensFile{
		Tokens:              r.Tokens,
		ImageGridDimensions: r.ImageGridDimensions,
		ImgURL:              r.ImgURL,
		ImageTokensStart:    r.ImageTokensStart,
	}
}

func (r *Record) attentionFile() *AttentionFile {
	return &AttentionFile{
		Attention:    r.Attention,
		AttentionMin: r.AttentionMin,
		AttentionMax: r.AttentionMax,
	}
}

func merge(t *TokensFile, a *AttentionFile) *Record {
	return &Record{
		Tokens:              t.Tokens,
		Attention:           a.Attention,
		AttentionMin:        a.AttentionMin,
		AttentionMax:        a.AttentionMax,
		ImageGridDimensions: t.ImageGridDimensions,
		ImgURL:              t.ImgURL,
		ImageTokensStart:    t.ImageTokensStart,
	}
}

// Matrices converts the serialized attention back into square matrices,
// rejecting heads whose size does not match the token count.
func (r *Record) Matrices() ([]*attention.Matrix, error) {
	n := len(r.Tokens)
	out := make([]*attention.Matrix, len(r.Attention))
	for h, rows := range r.Attention {
		if len(rows) != n {
			return nil, fmt.Errorf("head %d has %d rows for %d tokens", h, len(rows), n)
		}
		m := attention.NewMatrix(n)
		for i, row := range rows {
			if len(row) != n {
				return nil, fmt.Errorf("head %d row %d has %d columns for %d tokens", h, i, len(row), n)
			}
			copy(m.Row(i), row)
		}
		out[h] = m
	}
	return out, nil
}
