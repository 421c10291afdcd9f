// Package tokens builds the synthetic image+text token sequences that the
// attention fixtures are generated over.
package tokens

import (
	"fmt"
)

const ImageToken = "<image>"

// Range is a half-open [Start, End) span of token positions.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// Spec describes the sequence to build. The image block size comes from
// Rows*Cols when a grid is given, otherwise from Count.
type Spec struct {
	Rows  int
	Cols  int
	Count int

	ImageToken string // defaults to ImageToken
	RolePrefix string // optional, first token
	ClassToken string // optional, placed immediately before the image block
	Leading    []string
	Trailing   []string
}

// Sequence is an ordered token list with one contiguous image block.
type Sequence struct {
	Tokens     []string
	ImageToken string
	ImageStart int
	ImageCount int
	ClassIndex int // -1 when there is no class token
	GridRows   int
	GridCols   int
}

// Build lays tokens out as
// [role prefix] [leading...] [class token] <image>*n [trailing...].
func Build(spec Spec) (*Sequence, error) {
	if spec.Rows < 0 || spec.Cols < 0 || spec.Count < 0 {
		return nil, fmt.Errorf("negative dimensions: rows=%d cols=%d count=%d", spec.Rows, spec.Cols, spec.Count)
	}
	if (spec.Rows == 0) != (spec.Cols == 0) {
		return nil, fmt.Errorf("incomplete grid %dx%d", spec.Rows, spec.Cols)
	}

	n := spec.Count
	if spec.Rows > 0 {
		if spec.Count > 0 && spec.Count != spec.Rows*spec.Cols {
			return nil, fmt.Errorf("image count %d does not match grid %dx%d", spec.Count, spec.Rows, spec.Cols)
		}
		n = spec.Rows * spec.Cols
	}

	img := spec.ImageToken
	if img == "" {
		img = ImageToken
	}
	if spec.ClassToken != "" && n == 0 {
		return nil, fmt.Errorf("class token %q requires at least one image token", spec.ClassToken)
	}
	if spec.ClassToken == img || spec.RolePrefix == img {
		return nil, fmt.Errorf("special tokens must differ from image token %q", img)
	}
	for _, tok := range append(append([]string{}, spec.Leading...), spec.Trailing...) {
		if tok == img {
			return nil, fmt.Errorf("text token equals image token %q", img)
		}
	}

	toks := make([]string, 0, n+len(spec.Leading)+len(spec.Trailing)+2)
	if spec.RolePrefix != "" {
		toks = append(toks, spec.RolePrefix)
	}
	toks = append(toks, spec.Leading...)

	classIdx := -1
	if spec.ClassToken != "" {
		classIdx = len(toks)
		toks = append(toks, spec.ClassToken)
	}

	start := len(toks)
	for i := 0; i < n; i++ {
		toks = append(toks, img)
	}
	toks = append(toks, spec.Trailing...)

	if len(toks) == 0 {
		return nil, fmt.Errorf("empty token sequence")
	}

	return &Sequence{
		Tokens:     toks,
		ImageToken: img,
		ImageStart: start,
		ImageCount: n,
		ClassIndex: classIdx,
		GridRows:   spec.Rows,
		GridCols:   spec.Cols,
	}, nil
}

// Locate recovers a Sequence from a raw token list. The image tokens must
// form a single contiguous block; a class token, if named and present, must
// sit directly before it. Earlier copies of the class token string are
// ordinary tokens.
func Locate(toks []string, imageToken, classToken string) (*Sequence, error) {
	if imageToken == "" {
		imageToken = ImageToken
	}

	start, count := -1, 0
	for i, tok := range toks {
		if tok != imageToken {
			continue
		}
		if start < 0 {
			start = i
		} else if i != start+count {
			return nil, fmt.Errorf("image tokens are not contiguous: gap before position %d", i)
		}
		count++
	}
	if start < 0 {
		start = 0
	}

	classIdx := -1
	if classToken != "" {
		if count > 0 && start > 0 && toks[start-1] == classToken {
			classIdx = start - 1
		} else {
			// The same string may also appear as a prefix or text token; only
			// the occurrence directly before the image block counts.
			for i, tok := range toks {
				if tok == classToken {
					classIdx = i
					break
				}
			}
			if classIdx >= 0 && count > 0 {
				return nil, fmt.Errorf("class token at %d is not adjacent to image block at %d", classIdx, start)
			}
		}
	}

	return &Sequence{
		Tokens:     append([]string(nil), toks...),
		ImageToken: imageToken,
		ImageStart: start,
		ImageCount: count,
		ClassIndex: classIdx,
	}, nil
}

func (s *Sequence) Len() int {
	return len(s.Tokens)
}

func (s *Sequence) ImageEnd() int {
	return s.ImageStart + s.ImageCount
}

func (s *Sequence) ImageRange() Range {
	return Range{Start: s.ImageStart, End: s.ImageEnd()}
}

// DenseRange is the block exempt from causal masking: the image tokens,
// extended by the class token when one precedes them.
func (s *Sequence) DenseRange() Range {
	r := s.ImageRange()
	if s.ImageCount > 0 && s.ClassIndex >= 0 && s.ClassIndex == r.Start-1 {
		r.Start = s.ClassIndex
	}
	return r
}

func (s *Sequence) HasGrid() bool {
	return s.GridRows > 0 && s.GridCols > 0
}
