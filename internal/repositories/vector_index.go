package repositories

import (
	"context"

	"rag-chat/internal/models"
)

// Embedder is the slice of the embedding client the index depends on.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
	HealthCheck(ctx context.Context) error
}

// VectorIndex defines the interface for the document vector store.
// This abstracts ChromaDB operations and allows for easy testing and implementation swapping.
type VectorIndex interface {
	// Write path
	AddDocuments(ctx context.Context, chunks []*models.DocumentChunk) ([]string, error)

	// Read path
	Search(ctx context.Context, query string, limit int, filter map[string]interface{}) ([]*models.SearchResult, error)
	GetSimilar(ctx context.Context, id string, limit int) ([]*models.SearchResult, error)

	// Deletion. Both report whether anything was removed; deleting a
	// nonexistent source or id is not an error.
	DeleteBySource(ctx context.Context, sourceFile string) (bool, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	ClearAll(ctx context.Context) error

	// Aggregates
	Count(ctx context.Context) (int, error)
	GetAll(ctx context.Context, limit int) ([]*models.IndexRecord, error)
	Statistics(ctx context.Context) (*models.IndexStats, error)

	// Health
	HealthCheck(ctx context.Context) *models.IndexHealth
	Close() error
}

// VectorIndexError represents errors from the vector index
type VectorIndexError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorIndexError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorIndexError) Unwrap() error {
	return e.Err
}

// NewVectorIndexError creates a new vector index error
func NewVectorIndexError(operation string, err error, message string) *VectorIndexError {
	return &VectorIndexError{
		Operation: operation,
		Err:       err,
		Message:   message,
	}
}

// Common error constructors
func EmptyChunksError() error {
	return NewVectorIndexError(
		"add_documents",
		nil,
		"no chunks provided",
	)
}

func RecordNotFoundError(id string) error {
	return NewVectorIndexError(
		"get_record",
		nil,
		"record not found: "+id,
	)
}
