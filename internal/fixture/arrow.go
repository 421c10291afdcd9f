package fixture

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema metadata keys on Arrow fixtures.
const (
	MetaAttentionMin = "attention_min"
	MetaAttentionMax = "attention_max"
	MetaImageStart   = "image_tokens_start"
	MetaGrid         = "image_grid_dimensions"
	MetaImgURL       = "img_url"
	MetaHeads        = "heads"
)

// Schema describes one row per (head, destination token).
func Schema(rec *Record) *arrow.Schema {
	keys := []string{MetaAttentionMin, MetaAttentionMax, MetaHeads}
	vals := []string{
		strconv.FormatFloat(rec.AttentionMin, 'g', -1, 64),
		strconv.FormatFloat(rec.AttentionMax, 'g', -1, 64),
		strconv.Itoa(len(rec.Attention)),
	}
	if rec.ImageTokensStart != nil {
		keys = append(keys, MetaImageStart)
		vals = append(vals, strconv.Itoa(*rec.ImageTokensStart))
	}
	if rec.ImageGridDimensions != nil {
		keys = append(keys, MetaGrid)
		vals = append(vals, fmt.Sprintf("%d,%d", rec.ImageGridDimensions[0], rec.ImageGridDimensions[1]))
	}
	if rec.ImgURL != "" {
		keys = append(keys, MetaImgURL)
		vals = append(vals, rec.ImgURL)
	}
	md := arrow.NewMetadata(keys, vals)

	return arrow.NewSchema([]arrow.Field{
		{Name: "head", Type: arrow.PrimitiveTypes.Int32},
		{Name: "row", Type: arrow.PrimitiveTypes.Int32},
		{Name: "token", Type: arrow.BinaryTypes.String},
		{Name: "weights", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	}, &md)
}

// Records encodes the attention as one record batch per head. The caller
// releases the returned records.
func Records(mem memory.Allocator, rec *Record) (*arrow.Schema, []arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	schema := Schema(rec)
	out := make([]arrow.Record, 0, len(rec.Attention))

	for h, rows := range rec.Attention {
		if len(rows) != len(rec.Tokens) {
			releaseAll(out)
			return nil, nil, fmt.Errorf("head %d has %d rows for %d tokens", h, len(rows), len(rec.Tokens))
		}
		out = append(out, headRecord(mem, schema, h, rec.Tokens, rows))
	}
	return schema, out, nil
}

func headRecord(mem memory.Allocator, schema *arrow.Schema, head int, toks []string, rows [][]float64) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	hb := b.Field(0).(*array.Int32Builder)
	rb := b.Field(1).(*array.Int32Builder)
	tb := b.Field(2).(*array.StringBuilder)
	lb := b.Field(3).(*array.ListBuilder)
	vb := lb.ValueBuilder().(*array.Float64Builder)

	for i, row := range rows {
		hb.Append(int32(head))
		rb.Append(int32(i))
		tb.Append(toks[i])
		lb.Append(true)
		vb.AppendValues(row, nil)
	}
	return b.NewRecord()
}

// decodeRecord appends the rows of one batch into heads, growing it as
// needed.
func decodeRecord(rec arrow.Record, heads [][][]float64) ([][][]float64, error) {
	if rec.NumCols() != 4 {
		return nil, fmt.Errorf("expected 4 columns, got %d", rec.NumCols())
	}
	hc, ok := rec.Column(0).(*array.Int32)
	if !ok {
		return nil, fmt.Errorf("head column has type %s", rec.Column(0).DataType())
	}
	rc, ok := rec.Column(1).(*array.Int32)
	if !ok {
		return nil, fmt.Errorf("row column has type %s", rec.Column(1).DataType())
	}
	wc, ok := rec.Column(3).(*array.List)
	if !ok {
		return nil, fmt.Errorf("weights column has type %s", rec.Column(3).DataType())
	}
	values, ok := wc.ListValues().(*array.Float64)
	if !ok {
		return nil, fmt.Errorf("weights values have type %s", wc.ListValues().DataType())
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		h, r := int(hc.Value(i)), int(rc.Value(i))
		if h < 0 || r < 0 {
			return nil, fmt.Errorf("negative index head=%d row=%d", h, r)
		}
		for len(heads) <= h {
			heads = append(heads, nil)
		}
		for len(heads[h]) <= r {
			heads[h] = append(heads[h], nil)
		}
		start, end := wc.ValueOffsets(i)
		row := make([]float64, 0, end-start)
		for j := start; j < end; j++ {
			row = append(row, values.Value(int(j)))
		}
		heads[h][r] = row
	}
	return heads, nil
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}
