package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"

	"github.com/23skdu/longbow-attnmock/internal/config"
)

// File is one file produced by Write.
type File struct {
	Path  string
	Kind  string // "json", "tokens", "attention" or "arrow"
	Bytes int64
}

// Paths returns the files a layout produces for the output path out.
// Split and arrow layouts derive their names from out without its extension.
func Paths(out string, layout config.Layout) []File {
	base := strings.TrimSuffix(out, filepath.Ext(out))
	switch layout {
	case config.LayoutSplit:
		return []File{
			{Path: base + "_tokens.json", Kind: "tokens"},
			{Path: base + "_attention.json", Kind: "attention"},
		}
	case config.LayoutArrow:
		return []File{
			{Path: base + "_tokens.json", Kind: "tokens"},
			{Path: base + "_attention.arrow", Kind: "arrow"},
		}
	default:
		return []File{{Path: out, Kind: "json"}}
	}
}

// Write serializes rec under out in the given layout.
func Write(out string, layout config.Layout, rec *Record) ([]File, error) {
	files := Paths(out, layout)
	for i := range files {
		var (
			n   int64
			err error
		)
		switch files[i].Kind {
		case "json":
			n, err = writeJSON(files[i].Path, rec)
		case "tokens":
			n, err = writeJSON(files[i].Path, rec.tokensFile())
		case "attention":
			n, err = writeJSON(files[i].Path, rec.attentionFile())
		case "arrow":
			n, err = writeArrow(files[i].Path, rec)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", files[i].Path, err)
		}
		files[i].Bytes = n
	}
	return files, nil
}

func writeJSON(path string, v interface{}) (int64, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func writeArrow(path string, rec *Record) (int64, error) {
	mem := memory.NewGoAllocator()
	schema, recs, err := Records(mem, rec)
	if err != nil {
		return 0, err
	}
	defer releaseAll(recs)

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := writeIPC(f, schema, recs, mem)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}

func writeIPC(f *os.File, schema *arrow.Schema, recs []arrow.Record, mem memory.Allocator) (int64, error) {
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return 0, err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Read loads a fixture written by Write with the same out and layout.
func Read(out string, layout config.Layout) (*Record, error) {
	files := Paths(out, layout)
	switch layout {
	case config.LayoutSplit:
		var t TokensFile
		var a AttentionFile
		if err := readJSON(files[0].Path, &t); err != nil {
			return nil, err
		}
		if err := readJSON(files[1].Path, &a); err != nil {
			return nil, err
		}
		return merge(&t, &a), nil
	case config.LayoutArrow:
		var t TokensFile
		if err := readJSON(files[0].Path, &t); err != nil {
			return nil, err
		}
		a, err := readArrow(files[1].Path)
		if err != nil {
			return nil, err
		}
		return merge(&t, a), nil
	default:
		var rec Record
		if err := readJSON(out, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func readArrow(path string) (*AttentionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file %s: %w", path, err)
	}
	defer r.Close()

	var heads [][][]float64
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d of %s: %w", i, path, err)
		}
		if heads, err = decodeRecord(rec, heads); err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, path, err)
		}
	}

	md := r.Schema().Metadata()
	a := &AttentionFile{Attention: heads}
	if a.AttentionMin, err = metaFloat(md.FindKey(MetaAttentionMin), md.Values()); err != nil {
		return nil, err
	}
	if a.AttentionMax, err = metaFloat(md.FindKey(MetaAttentionMax), md.Values()); err != nil {
		return nil, err
	}
	return a, nil
}

func metaFloat(idx int, vals []string) (float64, error) {
	if idx < 0 {
		return 0, fmt.Errorf("arrow fixture missing range metadata")
	}
	v, err := strconv.ParseFloat(vals[idx], 64)
	if err != nil {
		return 0, fmt.Errorf("bad metadata value %q: %w", vals[idx], err)
	}
	return v, nil
}
