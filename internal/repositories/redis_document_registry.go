package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	documentKeyPrefix = "ragchat:document:"
	documentIndexKey  = "ragchat:documents:index"
	sourceIndexKey    = "ragchat:source:"
)

// RedisDocumentRegistry implements DocumentRegistry using Redis
type RedisDocumentRegistry struct {
	client *redis.Client
}

// NewRedisDocumentRegistry creates a new Redis-based document registry
func NewRedisDocumentRegistry(client *redis.Client) *RedisDocumentRegistry {
	return &RedisDocumentRegistry{
		client: client,
	}
}

// Register stores a new document entry
func (r *RedisDocumentRegistry) Register(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	exists, err := r.client.Exists(ctx, documentKeyPrefix+doc.ID).Result()
	if err != nil {
		return NewDocumentRegistryError("register", doc.ID, err, "")
	}
	if exists > 0 {
		return DocumentAlreadyExistsError(doc.ID)
	}

	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return NewDocumentRegistryError("register", doc.ID, err, "failed to marshal document")
	}

	// Use transaction to keep the entry and its indexes consistent
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, documentKeyPrefix+doc.ID, docJSON, 0)
	pipe.SAdd(ctx, documentIndexKey, doc.ID)
	pipe.Set(ctx, sourceIndexKey+doc.Filename, doc.ID, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewDocumentRegistryError("register", doc.ID, err, "failed to execute transaction")
	}

	return nil
}

// Get retrieves a document by ID
func (r *RedisDocumentRegistry) Get(ctx context.Context, documentID string) (*Document, error) {
	docJSON, err := r.client.Get(ctx, documentKeyPrefix+documentID).Result()
	if err == redis.Nil {
		return nil, DocumentNotFoundError(documentID)
	}
	if err != nil {
		return nil, NewDocumentRegistryError("get", documentID, err, "")
	}

	var doc Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, NewDocumentRegistryError("get", documentID, err, "failed to unmarshal document")
	}

	return &doc, nil
}

// FindBySource finds a document by its stored filename
func (r *RedisDocumentRegistry) FindBySource(ctx context.Context, sourceFile string) (*Document, error) {
	documentID, err := r.client.Get(ctx, sourceIndexKey+sourceFile).Result()
	if err == redis.Nil {
		return nil, DocumentNotFoundError("source:" + sourceFile)
	}
	if err != nil {
		return nil, NewDocumentRegistryError("find_by_source", "", err, "")
	}

	return r.Get(ctx, documentID)
}

// List retrieves all registered documents
func (r *RedisDocumentRegistry) List(ctx context.Context) ([]*Document, error) {
	docIDs, err := r.client.SMembers(ctx, documentIndexKey).Result()
	if err != nil {
		return nil, NewDocumentRegistryError("list", "", err, "")
	}

	if len(docIDs) == 0 {
		return []*Document{}, nil
	}

	// Pipeline the reads
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(docIDs))
	for i, id := range docIDs {
		cmds[i] = pipe.Get(ctx, documentKeyPrefix+id)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewDocumentRegistryError("list", "", err, "failed to execute batch get")
	}

	docs := make([]*Document, 0, len(docIDs))
	for i, cmd := range cmds {
		docJSON, err := cmd.Result()
		if err == redis.Nil {
			// Index entry without a document key, skip
			continue
		}
		if err != nil {
			return nil, NewDocumentRegistryError("list", docIDs[i], err, "")
		}

		var doc Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, NewDocumentRegistryError("list", docIDs[i], err, "failed to unmarshal document")
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// Update modifies document fields
func (r *RedisDocumentRegistry) Update(ctx context.Context, documentID string, updates map[string]interface{}) error {
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}

	for key, value := range updates {
		switch key {
		case "status":
			if v, ok := value.(string); ok {
				doc.Status = DocumentStatus(v)
			} else if v, ok := value.(DocumentStatus); ok {
				doc.Status = v
			}
		case "chunk_count":
			if v, ok := value.(int); ok {
				doc.ChunkCount = v
			} else if v, ok := value.(float64); ok {
				doc.ChunkCount = int(v)
			}
		case "metadata":
			if v, ok := value.(map[string]interface{}); ok {
				doc.Metadata = v
			}
		}
	}

	doc.UpdatedAt = time.Now()

	if err := doc.Validate(); err != nil {
		return err
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return NewDocumentRegistryError("update", documentID, err, "failed to marshal document")
	}

	if err := r.client.Set(ctx, documentKeyPrefix+documentID, docJSON, 0).Err(); err != nil {
		return NewDocumentRegistryError("update", documentID, err, "")
	}

	return nil
}

// Delete removes a document entry and its indexes
func (r *RedisDocumentRegistry) Delete(ctx context.Context, documentID string) error {
	doc, err := r.Get(ctx, documentID)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, documentKeyPrefix+documentID)
	pipe.SRem(ctx, documentIndexKey, documentID)
	pipe.Del(ctx, sourceIndexKey+doc.Filename)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewDocumentRegistryError("delete", documentID, err, "failed to execute transaction")
	}

	return nil
}

// CountTotal counts all registered documents
func (r *RedisDocumentRegistry) CountTotal(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, documentIndexKey).Result()
	if err != nil {
		return 0, NewDocumentRegistryError("count_total", "", err, "")
	}
	return int(count), nil
}

// GetStats returns aggregate statistics about registered documents
func (r *RedisDocumentRegistry) GetStats(ctx context.Context) (*DocumentStats, error) {
	docs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DocumentStats{
		TotalDocuments:    len(docs),
		DocumentsByStatus: make(map[DocumentStatus]int),
		DocumentsByType:   make(map[string]int),
	}

	for _, doc := range docs {
		stats.DocumentsByStatus[doc.Status]++
		stats.DocumentsByType[doc.FileType]++
		stats.TotalChunks += doc.ChunkCount
		stats.TotalSize += doc.FileSize
	}

	return stats, nil
}

// Ping checks if the Redis connection is alive
func (r *RedisDocumentRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisDocumentRegistry) Close() error {
	return r.client.Close()
}
