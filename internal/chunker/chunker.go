package chunker

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"rag-chat/internal/models"
)

// minChunkChars is the floor below which a window is discarded entirely
// rather than merged into a neighbor.
const minChunkChars = 50

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// \p{L}\p{N} rather than \w: Go's \w is ASCII-only and would strip
	// accented and CJK letters from indexed content.
	specialsRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()\[\]{}"'/\\]`)
)

// Chunker splits normalized text into overlapping fixed-size word windows.
// It is a pure function of its inputs plus configuration.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker. Overlap must be strictly less than the chunk size or
// the window step would be zero or negative.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap cannot be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be less than chunk size (%d)", overlap, chunkSize)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Chunk splits text into word windows of the configured size, stepping by
// chunkSize-overlap words. Windows whose joined text is shorter than 50
// characters are dropped; chunk indices are dense over kept chunks only.
func (c *Chunker) Chunk(text, sourceFile string, metadata map[string]interface{}) []*models.DocumentChunk {
	words := strings.Fields(cleanText(text))
	if len(words) == 0 {
		return nil
	}

	stem := fileStem(sourceFile)
	step := c.chunkSize - c.overlap

	var chunks []*models.DocumentChunk
	for start := 0; start < len(words); start += step {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}

		window := words[start:end]
		content := strings.Join(window, " ")
		if len(strings.TrimSpace(content)) < minChunkChars {
			continue
		}

		chunkMeta := make(map[string]interface{}, len(metadata)+5)
		for k, v := range metadata {
			chunkMeta[k] = v
		}
		chunkMeta["source_file"] = sourceFile
		if _, ok := chunkMeta["file_type"]; !ok {
			chunkMeta["file_type"] = "unknown"
		}
		chunkMeta["chunk_size"] = len(content)
		chunkMeta["word_count"] = len(window)
		chunkMeta["created_at"] = time.Now().Format(time.RFC3339)

		chunks = append(chunks, &models.DocumentChunk{
			Content:    content,
			SourceFile: sourceFile,
			ChunkIndex: len(chunks),
			ChunkID:    fmt.Sprintf("%s_%d", stem, len(chunks)),
			Metadata:   chunkMeta,
		})
	}

	return chunks
}

// cleanText collapses whitespace runs to single spaces and strips control and
// special characters while keeping standard punctuation.
func cleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = specialsRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
