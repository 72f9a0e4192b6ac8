// Package chunker splits extracted document text into overlapping,
// size-bounded passages. Offsets are expressed in runes.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptyInput     = errors.New("empty input")
	ErrNotText        = errors.New("input is not decodable text")
	ErrInvalidOptions = errors.New("invalid chunk options")
)

type ChunkOptions struct {
	MaxChunkChars int // upper bound on runes per chunk
	OverlapChars  int // runes repeated from the end of the previous chunk
}

type TextChunk struct {
	Content string
	Index   int
	Start   int // rune offset, inclusive
	End     int // rune offset, exclusive
}

func DefaultOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkChars: 1000,
		OverlapChars:  200,
	}
}

func (o ChunkOptions) Validate() error {
	if o.MaxChunkChars <= 0 {
		return fmt.Errorf("%w: max chunk chars must be positive", ErrInvalidOptions)
	}
	if o.OverlapChars < 0 || o.OverlapChars >= o.MaxChunkChars {
		return fmt.Errorf("%w: overlap must be in [0, %d)", ErrInvalidOptions, o.MaxChunkChars)
	}
	return nil
}

// Boundaries in order of preference. A cut lands right after the separator.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// Chunk validates text and returns a lazy sequence of chunks. The sequence
// may be ranged over any number of times and always yields the same chunks.
//
// Every rune of text is covered by at least one chunk, Start is strictly
// increasing, and each chunk starts no later than the previous one ends.
func Chunk(text string, opts ChunkOptions) (iter.Seq[TextChunk], error) {
	if err := CheckText(text); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	return func(yield func(TextChunk) bool) {
		start, idx := 0, 0
		for start < len(runes) {
			end := cutPoint(runes, start, opts)
			chunk := TextChunk{
				Content: string(runes[start:end]),
				Index:   idx,
				Start:   start,
				End:     end,
			}
			if !yield(chunk) || end >= len(runes) {
				return
			}
			start = overlapStart(runes, start, end, opts.OverlapChars)
			idx++
		}
	}, nil
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[TextChunk]) []TextChunk {
	var out []TextChunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}

// CheckText rejects blank input and input that is not printable text.
func CheckText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: invalid UTF-8", ErrNotText)
	}

	var total, control int
	for _, r := range text {
		total++
		if r == 0 {
			return fmt.Errorf("%w: contains NUL bytes", ErrNotText)
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			control++
		}
	}
	if control*10 > total {
		return fmt.Errorf("%w: too many control characters", ErrNotText)
	}
	return nil
}

func cutPoint(runes []rune, start int, opts ChunkOptions) int {
	limit := start + opts.MaxChunkChars
	if limit >= len(runes) {
		return len(runes)
	}

	// The cut must leave room for the overlap so the next chunk advances,
	// and should not produce chunks much smaller than half the budget.
	lo := start + max(opts.OverlapChars+1, opts.MaxChunkChars/2)
	for _, sep := range separators {
		for pos := limit; pos >= lo && pos >= start+len(sep); pos-- {
			if hasSuffixAt(runes, pos, sep) {
				return pos
			}
		}
	}
	return limit
}

func overlapStart(runes []rune, start, end, overlap int) int {
	if overlap == 0 {
		return end
	}
	next := end - overlap
	if next <= start {
		next = start + 1
	}
	// Prefer starting the overlap on a word boundary.
	for i := next; i < end; i++ {
		if unicode.IsSpace(runes[i-1]) && !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return next
}

func hasSuffixAt(runes []rune, pos int, sep []rune) bool {
	if pos-len(sep) < 0 {
		return false
	}
	for i, r := range sep {
		if runes[pos-len(sep)+i] != r {
			return false
		}
	}
	return true
}
