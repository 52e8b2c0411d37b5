package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap greater than size", size: 100, overlap: 150},
		{name: "negative overlap", size: 100, overlap: -1},
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -10, overlap: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Chunk("some text", tt.size, tt.overlap)
			require.Error(t, err)
			var cfgErr *InvalidConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Nil(t, chunks)
		})
	}
}

func TestChunkShortTextYieldsWholeText(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
	}{
		{name: "shorter than size", text: "hello world", size: 100},
		{name: "exactly size", text: strings.Repeat("a", 50), size: 50},
		{name: "empty text", text: "", size: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Chunk(tt.text, tt.size, 5)
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, tt.text, chunks[0])
		})
	}
}

func TestChunkWindowOffsets(t *testing.T) {
	// 26 letters, size 10, overlap 4 -> offsets 0, 6, 12, 18 with a short tail.
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks, err := Chunk(text, 10, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"abcdefghij",
		"ghijklmnop",
		"mnopqrstuv",
		"stuvwxyz",
	}, chunks)
}

func TestChunkOverlapInvariant(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	size, overlap := 100, 30

	chunks, err := Chunk(text, size, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		tail := string(prev[len(prev)-overlap:])
		head := string(cur[:overlap])
		assert.Equalf(t, tail, head, "chunks %d and %d do not share the declared overlap", i-1, i)
	}
}

// Concatenating chunks with the overlap stripped must reconstruct the input
// exactly, for any valid (size, overlap).
func TestChunkRoundTrip(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("0123456789", 100),
		strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 37),
		strings.Repeat("héllo wörld ", 200), // multi-byte runes
	}
	configs := []struct{ size, overlap int }{
		{1000, 200},
		{100, 0},
		{50, 49},
		{7, 3},
	}

	for _, text := range texts {
		for _, cfg := range configs {
			chunks, err := Chunk(text, cfg.size, cfg.overlap)
			require.NoError(t, err)

			var b strings.Builder
			for i, ch := range chunks {
				r := []rune(ch)
				if i == 0 {
					b.WriteString(ch)
				} else {
					b.WriteString(string(r[cfg.overlap:]))
				}
			}
			require.Equalf(t, text, b.String(),
				"round trip failed for size=%d overlap=%d", cfg.size, cfg.overlap)
		}
	}
}

func TestChunkFinalWindowNeverDuplicated(t *testing.T) {
	// Length chosen so the last full window ends exactly at the text end.
	text := strings.Repeat("x", 16) // size 10, step 6 -> windows [0:10], [6:16]
	chunks, err := Chunk(text, 10, 4)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "xxxxxxxxxx", chunks[0])
	assert.Equal(t, "xxxxxxxxxx", chunks[1])
}
