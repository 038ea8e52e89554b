package repositories

import (
	"context"
	"time"
)

// DocumentStatus tracks where an upload is in the ingest pipeline
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusIndexed    DocumentStatus = "indexed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is a registry entry for one uploaded file. The vector index holds
// the chunks; the registry holds upload bookkeeping.
type Document struct {
	ID               string                 `json:"id"`
	Filename         string                 `json:"filename"`
	OriginalFilename string                 `json:"original_filename"`
	FileType         string                 `json:"file_type"`
	FileSize         int64                  `json:"file_size"`
	StoredPath       string                 `json:"stored_path"`
	ChunkCount       int                    `json:"chunk_count"`
	Status           DocumentStatus         `json:"status"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// Validate checks required fields
func (d *Document) Validate() error {
	if d.ID == "" {
		return NewDocumentRegistryError("validate", "", nil, "document id is required")
	}
	if d.Filename == "" {
		return NewDocumentRegistryError("validate", d.ID, nil, "filename is required")
	}
	if d.Status == "" {
		return NewDocumentRegistryError("validate", d.ID, nil, "status is required")
	}
	return nil
}

// DocumentStats summarizes the registry
type DocumentStats struct {
	TotalDocuments    int                    `json:"total_documents"`
	DocumentsByStatus map[DocumentStatus]int `json:"documents_by_status"`
	DocumentsByType   map[string]int         `json:"documents_by_type"`
	TotalChunks       int                    `json:"total_chunks"`
	TotalSize         int64                  `json:"total_size"`
}

// DocumentRegistry tracks uploaded files. The registry is an optional
// collaborator; the service degrades gracefully when it is unavailable.
type DocumentRegistry interface {
	Register(ctx context.Context, doc *Document) error
	Get(ctx context.Context, documentID string) (*Document, error)
	FindBySource(ctx context.Context, sourceFile string) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	Update(ctx context.Context, documentID string, updates map[string]interface{}) error
	Delete(ctx context.Context, documentID string) error
	CountTotal(ctx context.Context) (int, error)
	GetStats(ctx context.Context) (*DocumentStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// DocumentRegistryError represents errors from the document registry
type DocumentRegistryError struct {
	Operation  string
	DocumentID string
	Err        error
	Message    string
}

func (e *DocumentRegistryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *DocumentRegistryError) Unwrap() error {
	return e.Err
}

// NewDocumentRegistryError creates a new document registry error
func NewDocumentRegistryError(operation, documentID string, err error, message string) *DocumentRegistryError {
	return &DocumentRegistryError{
		Operation:  operation,
		DocumentID: documentID,
		Err:        err,
		Message:    message,
	}
}

func DocumentNotFoundError(documentID string) error {
	return NewDocumentRegistryError(
		"get",
		documentID,
		nil,
		"document not found: "+documentID,
	)
}

func DocumentAlreadyExistsError(documentID string) error {
	return NewDocumentRegistryError(
		"register",
		documentID,
		nil,
		"document already exists: "+documentID,
	)
}
