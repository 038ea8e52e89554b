package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordText builds a deterministic text of n distinct words.
func wordText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%04d", i)
	}
	return strings.Join(words, " ")
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"zero chunk size", 0, 0},
		{"negative chunk size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals chunk size", 100, 100},
		{"overlap exceeds chunk size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestChunk_TwoWindowsWithOverlap(t *testing.T) {
	// 1200 words with size=1000, overlap=200: chunk 0 covers words [0,1000),
	// chunk 1 covers words [800,1200).
	c, err := New(1000, 200)
	require.NoError(t, err)

	chunks := c.Chunk(wordText(1200), "docs/sample.txt", map[string]interface{}{"file_type": "txt"})
	require.Len(t, chunks, 2)

	first := strings.Fields(chunks[0].Content)
	second := strings.Fields(chunks[1].Content)
	assert.Len(t, first, 1000)
	assert.Len(t, second, 400)
	assert.Equal(t, "word0000", first[0])
	assert.Equal(t, "word0999", first[999])
	assert.Equal(t, "word0800", second[0])
	assert.Equal(t, "word1199", second[399])

	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, "sample_0", chunks[0].ChunkID)
	assert.Equal(t, "sample_1", chunks[1].ChunkID)
}

func TestChunk_WindowsCoverAllWords(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	chunks := c.Chunk(wordText(500), "cover.txt", nil)
	require.NotEmpty(t, chunks)

	seen := make(map[string]bool)
	for _, chunk := range chunks {
		for _, w := range strings.Fields(chunk.Content) {
			seen[w] = true
		}
	}
	assert.Len(t, seen, 500, "every word should appear in some chunk")
}

func TestChunk_DropsShortWindows(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	// 12 short words: the trailing window is only a few characters and must
	// be discarded, not merged.
	text := strings.TrimSpace(strings.Repeat("ab ", 12))
	chunks := c.Chunk(text, "short.txt", nil)

	for _, chunk := range chunks {
		assert.GreaterOrEqual(t, len(chunk.Content), 50)
	}
}

func TestChunk_DenseIndicesAfterSkip(t *testing.T) {
	c, err := New(10, 0)
	require.NoError(t, err)

	// First window is long enough, second is too short, so only one chunk
	// comes out and its index is 0.
	long := make([]string, 10)
	for i := range long {
		long[i] = "abcdefgh"
	}
	text := strings.Join(long, " ") + " tiny"
	chunks := c.Chunk(text, "dense.txt", nil)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestChunk_MetadataStamping(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	chunks := c.Chunk(wordText(100), "meta.md", map[string]interface{}{
		"file_type": "markdown",
		"pages":     3,
	})
	require.Len(t, chunks, 1)

	meta := chunks[0].Metadata
	assert.Equal(t, "meta.md", meta["source_file"])
	assert.Equal(t, "markdown", meta["file_type"])
	assert.Equal(t, 3, meta["pages"])
	assert.Equal(t, len(chunks[0].Content), meta["chunk_size"])
	assert.Equal(t, 100, meta["word_count"])
	assert.NotEmpty(t, meta["created_at"])
}

func TestChunk_DefaultsFileType(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	chunks := c.Chunk(wordText(100), "typeless", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, "unknown", chunks[0].Metadata["file_type"])
}

func TestChunk_NormalizesWhitespaceAndSpecials(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	text := "Hello,   world!\n\n\nThis\tis a test© with™ special~chars and enough words to pass the minimum length floor easily."
	chunks := c.Chunk(text, "clean.txt", nil)
	require.Len(t, chunks, 1)

	assert.NotContains(t, chunks[0].Content, "\n")
	assert.NotContains(t, chunks[0].Content, "\t")
	assert.NotContains(t, chunks[0].Content, "©")
	assert.NotContains(t, chunks[0].Content, "™")
	assert.NotContains(t, chunks[0].Content, "~")
	assert.Contains(t, chunks[0].Content, "Hello, world!")
}

func TestChunk_PreservesNonASCIILetters(t *testing.T) {
	c, err := New(100, 0)
	require.NoError(t, err)

	text := strings.TrimSpace(strings.Repeat("Le café está très bien aménagé près de la forêt. ", 4))
	chunks := c.Chunk(text, "notes.txt", nil)
	require.Len(t, chunks, 1)

	assert.Contains(t, chunks[0].Content, "café está très bien aménagé")
	assert.Contains(t, chunks[0].Content, "forêt")

	cjk := strings.TrimSpace(strings.Repeat("日本語のドキュメント を 検索する ための テスト です。 ", 3))
	chunks = c.Chunk(cjk, "cjk.txt", nil)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "日本語のドキュメント")
}

func TestChunk_EmptyText(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	assert.Empty(t, c.Chunk("", "empty.txt", nil))
	assert.Empty(t, c.Chunk("   \n\t  ", "blank.txt", nil))
}
