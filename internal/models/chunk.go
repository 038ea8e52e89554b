package models

import "time"

// DocumentChunk is the atomic unit produced by the chunker and consumed by the
// vector index. Chunks are immutable once created; updating a document means
// delete + reinsert.
type DocumentChunk struct {
	Content    string                 `json:"content"`
	SourceFile string                 `json:"source_file"`
	ChunkIndex int                    `json:"chunk_index"`
	ChunkID    string                 `json:"chunk_id"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks if the chunk is valid.
func (c *DocumentChunk) Validate() error {
	if c.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if c.SourceFile == "" {
		return &ValidationError{Field: "source_file", Message: "source file is required"}
	}
	if c.ChunkIndex < 0 {
		return &ValidationError{Field: "chunk_index", Message: "chunk index cannot be negative"}
	}
	return nil
}

// SearchResult represents a single result from vector similarity search,
// ordered nearest first. Distance is nil if the backend did not report one.
type SearchResult struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Distance *float32               `json:"distance,omitempty"`
}

// IndexRecord is a stored vector as returned by administrative listing.
type IndexRecord struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// IndexStats summarizes the vector index. The file-type histogram and average
// chunk size are computed from a bounded sample (first 100 records), not a
// full scan.
type IndexStats struct {
	TotalDocuments   int            `json:"total_documents"`
	FileTypes        map[string]int `json:"file_types"`
	AverageChunkSize float64        `json:"average_chunk_size"`
	EmbeddingModel   string         `json:"embedding_model"`
	CollectionName   string         `json:"collection_name"`
	SampleSize       int            `json:"sample_size"`
}

// IndexHealth reports whether the index and its embedding backend are usable.
type IndexHealth struct {
	Status           string `json:"status"`
	DocumentCount    int    `json:"document_count"`
	SearchFunctional bool   `json:"search_functional"`
	EmbedderLoaded   bool   `json:"embedder_loaded"`
	Error            string `json:"error,omitempty"`
}

// ExtractedDocument is the output of a text extractor: plain text plus
// structural metadata about the source file.
type ExtractedDocument struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UploadResult describes one processed upload.
type UploadResult struct {
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	ChunksCreated    int       `json:"chunks_created"`
	FileSize         int64     `json:"file_size"`
	ProcessedAt      time.Time `json:"processed_at"`
	Status           string    `json:"status"`
}
