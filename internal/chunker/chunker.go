// Package chunker splits text into fixed-size overlapping character windows.
//
// Splitting is a pure character-offset operation on purpose: it ignores word
// and sentence boundaries so that output is byte-reproducible for a given
// (text, size, overlap). Retrieval quality tuning belongs upstream, not here.
package chunker

import "fmt"

// InvalidConfigError reports chunk bounds that violate 0 <= overlap < size.
type InvalidConfigError struct {
	Size    int
	Overlap int
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("chunker: invalid configuration: size=%d overlap=%d (need 0 <= overlap < size)", e.Size, e.Overlap)
}

// Chunk produces windows of size characters starting at offsets
// 0, size-overlap, 2*(size-overlap), ... The final window is the remainder
// and may be shorter than size; it is never emitted twice. Text shorter than
// size yields exactly one chunk equal to the whole text.
//
// Offsets count runes, not bytes, so multi-byte text never splits inside a
// code point.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, &InvalidConfigError{Size: size, Overlap: overlap}
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
