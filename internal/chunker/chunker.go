// Package chunker splits raw document text into overlapping segments
// that serve as the unit of embedding and retrieval.
package chunker

import (
	"fmt"

	"docquery/internal/domain"
)

// Chunk is one contiguous segment of a document. Start and End are rune
// offsets into the source text, so ordering chunks by Index and
// stitching them with the declared overlap removed reproduces the
// source exactly.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Split walks text in a sliding window of size runes, advancing the
// window start by size-overlap runes each step. The final chunk may be
// shorter than size but is never empty; a window that reaches the end
// of the text ends the walk, so no chunk is ever a pure suffix of its
// predecessor. Empty input yields no chunks and no error.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got overlap=%d size=%d", domain.ErrInvalidConfig, overlap, size)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
