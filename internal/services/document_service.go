package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rag-chat/internal/chunker"
	"rag-chat/internal/extractor"
	"rag-chat/internal/keywords"
	"rag-chat/internal/models"
	"rag-chat/internal/repositories"
)

// keywordsPerDocument bounds the keyword enrichment attached to each upload.
const keywordsPerDocument = 10

// UploadConfig carries the upload-layer tunables.
type UploadConfig struct {
	UploadDir         string
	MaxFileSizeBytes  int64
	AllowedExtensions []string
}

// DocumentSummary is the listing view of an indexed document, grouped by
// source file.
type DocumentSummary struct {
	SourceFile string                 `json:"source_file"`
	FileType   string                 `json:"file_type"`
	ChunkCount int                    `json:"chunk_count"`
	Status     string                 `json:"status,omitempty"`
	FileSize   int64                  `json:"file_size,omitempty"`
	UploadedAt time.Time              `json:"uploaded_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentService runs the upload pipeline: validate, save, extract, enrich,
// chunk, index. The registry is optional; without it uploads still index, they
// just lose the bookkeeping view.
type DocumentService struct {
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	keywords  *keywords.Extractor
	index     repositories.VectorIndex
	registry  repositories.DocumentRegistry
	config    UploadConfig
	logger    *log.Logger
}

// NewDocumentService wires the ingest pipeline. registry may be nil.
func NewDocumentService(
	ext *extractor.Extractor,
	ch *chunker.Chunker,
	kw *keywords.Extractor,
	index repositories.VectorIndex,
	registry repositories.DocumentRegistry,
	config UploadConfig,
	logger *log.Logger,
) *DocumentService {
	return &DocumentService{
		extractor: ext,
		chunker:   ch,
		keywords:  kw,
		index:     index,
		registry:  registry,
		config:    config,
		logger:    logger,
	}
}

// Upload ingests one file: saves it under a timestamped name, extracts text,
// chunks it and indexes the chunks. A failure at any stage removes the saved
// file and leaves nothing indexed for this upload.
func (s *DocumentService) Upload(ctx context.Context, originalFilename string, size int64, r io.Reader) (*models.UploadResult, error) {
	if err := s.validateUpload(originalFilename, size); err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), sanitizeFilename(originalFilename))
	storedPath := filepath.Join(s.config.UploadDir, storedName)

	if err := s.saveFile(storedPath, r); err != nil {
		return nil, err
	}

	result, err := s.ingest(ctx, storedName, storedPath, originalFilename, size)
	if err != nil {
		// Partial uploads leave no trace on disk.
		if rmErr := os.Remove(storedPath); rmErr != nil {
			s.logger.Printf("Failed to remove %s after ingest error: %v", storedPath, rmErr)
		}
		return nil, err
	}

	return result, nil
}

func (s *DocumentService) validateUpload(filename string, size int64) error {
	if filename == "" {
		return &models.ValidationError{Field: "filename", Message: "filename is required"}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	allowed := false
	for _, a := range s.config.AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return &models.ValidationError{
			Field:   "filename",
			Message: fmt.Sprintf("file type %q is not allowed", ext),
		}
	}

	// Oversized uploads are rejected before any processing begins.
	if s.config.MaxFileSizeBytes > 0 && size > s.config.MaxFileSizeBytes {
		return &models.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes),
		}
	}

	return nil
}

func (s *DocumentService) saveFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	src := r
	if s.config.MaxFileSizeBytes > 0 {
		src = io.LimitReader(r, s.config.MaxFileSizeBytes+1)
	}

	written, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write upload: %w", err)
	}
	if s.config.MaxFileSizeBytes > 0 && written > s.config.MaxFileSizeBytes {
		os.Remove(path)
		return &models.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes),
		}
	}
	return nil
}

func (s *DocumentService) ingest(ctx context.Context, storedName, storedPath, originalFilename string, size int64) (*models.UploadResult, error) {
	doc, err := s.extractor.Extract(storedPath)
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]interface{}, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	metadata["original_filename"] = originalFilename

	if kws, err := s.keywords.ExtractStrings(doc.Text, keywordsPerDocument); err != nil {
		s.logger.Printf("Keyword extraction failed for %s: %v", storedName, err)
	} else if len(kws) > 0 {
		metadata["keywords"] = kws
	}

	chunks := s.chunker.Chunk(doc.Text, storedName, metadata)
	if len(chunks) == 0 {
		return nil, &models.ValidationError{
			Field:   "file",
			Message: "document produced no indexable text",
		}
	}

	var entry *repositories.Document
	if s.registry != nil {
		entry = &repositories.Document{
			ID:               uuid.New().String(),
			Filename:         storedName,
			OriginalFilename: originalFilename,
			FileType:         fmt.Sprintf("%v", metadata["file_type"]),
			FileSize:         size,
			StoredPath:       storedPath,
			Status:           repositories.DocumentStatusProcessing,
		}
		if err := s.registry.Register(ctx, entry); err != nil {
			s.logger.Printf("Registry register failed for %s: %v", storedName, err)
			entry = nil
		}
	}

	if _, err := s.index.AddDocuments(ctx, chunks); err != nil {
		if entry != nil {
			if updErr := s.registry.Update(ctx, entry.ID, map[string]interface{}{
				"status": string(repositories.DocumentStatusFailed),
			}); updErr != nil {
				s.logger.Printf("Registry update failed for %s: %v", storedName, updErr)
			}
		}
		return nil, err
	}

	if entry != nil {
		if err := s.registry.Update(ctx, entry.ID, map[string]interface{}{
			"status":      string(repositories.DocumentStatusIndexed),
			"chunk_count": len(chunks),
		}); err != nil {
			s.logger.Printf("Registry update failed for %s: %v", storedName, err)
		}
	}

	s.logger.Printf("Processed upload %s: %d chunks indexed", storedName, len(chunks))
	return &models.UploadResult{
		Filename:         storedName,
		OriginalFilename: originalFilename,
		ChunksCreated:    len(chunks),
		FileSize:         size,
		ProcessedAt:      time.Now(),
		Status:           "indexed",
	}, nil
}

// Search runs a similarity search over the indexed documents.
func (s *DocumentService) Search(ctx context.Context, query string, limit int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	return s.index.Search(ctx, query, limit, filter)
}

// GetSimilar finds chunks similar to an already indexed chunk.
func (s *DocumentService) GetSimilar(ctx context.Context, chunkID string, limit int) ([]*models.SearchResult, error) {
	return s.index.GetSimilar(ctx, chunkID, limit)
}

// ListDocuments groups the index contents by source file. Registry entries,
// when available, add upload bookkeeping to each summary.
func (s *DocumentService) ListDocuments(ctx context.Context) ([]*DocumentSummary, error) {
	records, err := s.index.GetAll(ctx, 0)
	if err != nil {
		return nil, err
	}

	bySource := make(map[string]*DocumentSummary)
	for _, rec := range records {
		source, _ := rec.Metadata["source_file"].(string)
		if source == "" {
			source = "unknown"
		}

		summary, ok := bySource[source]
		if !ok {
			summary = &DocumentSummary{SourceFile: source}
			if ft, ok := rec.Metadata["file_type"].(string); ok {
				summary.FileType = ft
			}
			bySource[source] = summary
		}
		summary.ChunkCount++
	}

	summaries := make([]*DocumentSummary, 0, len(bySource))
	for _, summary := range bySource {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].SourceFile < summaries[j].SourceFile
	})

	if s.registry != nil {
		for _, summary := range summaries {
			entry, err := s.registry.FindBySource(ctx, summary.SourceFile)
			if err != nil {
				continue
			}
			summary.Status = string(entry.Status)
			summary.FileSize = entry.FileSize
			summary.UploadedAt = entry.CreatedAt
		}
	}

	return summaries, nil
}

// Delete removes every indexed chunk for a source file, its registry entry and
// the saved file. Reports whether anything was removed from the index.
func (s *DocumentService) Delete(ctx context.Context, sourceFile string) (bool, error) {
	deleted, err := s.index.DeleteBySource(ctx, sourceFile)
	if err != nil {
		return false, err
	}

	if s.registry != nil {
		if entry, err := s.registry.FindBySource(ctx, sourceFile); err == nil {
			if err := s.registry.Delete(ctx, entry.ID); err != nil {
				s.logger.Printf("Registry delete failed for %s: %v", sourceFile, err)
			}
		}
	}

	storedPath := filepath.Join(s.config.UploadDir, sourceFile)
	if err := os.Remove(storedPath); err != nil && !os.IsNotExist(err) {
		s.logger.Printf("Failed to remove stored file %s: %v", storedPath, err)
	}

	return deleted, nil
}

// Statistics reports index-level statistics.
func (s *DocumentService) Statistics(ctx context.Context) (*models.IndexStats, error) {
	return s.index.Statistics(ctx)
}

// ClearAll removes every vector from the index. Irreversible.
func (s *DocumentService) ClearAll(ctx context.Context) error {
	return s.index.ClearAll(ctx)
}

// sanitizeFilename strips path components and characters that do not belong
// in a stored filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
