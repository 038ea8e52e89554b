package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"rag-chat/internal/db"
	"rag-chat/internal/models"
)

const (
	// maxSearchLimit caps caller-requested result counts.
	maxSearchLimit = 50
	// statsSampleSize bounds the scan used for Statistics. The reported
	// histogram and average are computed from this prefix sample, not a
	// full scan; IndexStats.SampleSize tells callers how many records
	// were inspected.
	statsSampleSize = 100

	// additionalMetadataKey holds non-scalar metadata values serialized to
	// JSON, since ChromaDB only stores scalar metadata fields.
	additionalMetadataKey = "additional_metadata"
)

// ChromaVectorIndex implements VectorIndex using a single ChromaDB collection.
// Embeddings are produced through the injected Embedder at write and query time.
type ChromaVectorIndex struct {
	client         *db.ChromaClient
	embedder       Embedder
	collectionName string
	logger         *log.Logger

	mu           sync.Mutex
	collectionID string
}

// NewChromaVectorIndex creates the index and ensures its backing collection
// exists.
func NewChromaVectorIndex(ctx context.Context, client *db.ChromaClient, embedder Embedder, collectionName string, logger *log.Logger) (*ChromaVectorIndex, error) {
	idx := &ChromaVectorIndex{
		client:         client,
		embedder:       embedder,
		collectionName: collectionName,
		logger:         logger,
	}

	collection, err := client.GetOrCreateCollection(ctx, collectionName, nil)
	if err != nil {
		return nil, NewVectorIndexError("init", err, "failed to initialize collection: "+collectionName)
	}
	idx.collectionID = collection.ID

	logger.Printf("Vector index ready (collection=%s)", collectionName)
	return idx, nil
}

func (idx *ChromaVectorIndex) collection() string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.collectionID
}

// AddDocuments embeds and stores the given chunks, returning the generated
// vector ids. The operation is all-or-nothing: embedding failure persists
// nothing, and storage failure is surfaced rather than reported as success.
func (idx *ChromaVectorIndex) AddDocuments(ctx context.Context, chunks []*models.DocumentChunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, EmptyChunksError()
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return nil, NewVectorIndexError("add_documents", err, "")
		}
		texts[i] = chunk.Content
	}

	embeddings, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, NewVectorIndexError("add_documents", err, "embedding generation failed")
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, chunk := range chunks {
		ids[i] = uuid.New().String()
		metadatas[i] = flattenMetadata(chunk.Metadata)
	}

	if err := idx.client.Add(ctx, idx.collection(), ids, texts, embeddings, metadatas); err != nil {
		return nil, NewVectorIndexError("add_documents", err, "failed to store chunks")
	}

	idx.logger.Printf("Indexed %d chunks from %s", len(chunks), chunks[0].SourceFile)
	return ids, nil
}

// Search embeds the query and returns up to limit results ordered nearest
// first. A blank query returns an empty result set without touching the
// embedding backend.
func (idx *ChromaVectorIndex) Search(ctx context.Context, query string, limit int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []*models.SearchResult{}, nil
	}

	if limit <= 0 {
		limit = 5
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	return idx.query(ctx, query, limit, filter)
}

// query runs the embed-and-rank step without the public limit clamp, so
// internal callers can over-fetch past it.
func (idx *ChromaVectorIndex) query(ctx context.Context, query string, limit int, filter map[string]interface{}) ([]*models.SearchResult, error) {
	queryEmbedding, err := idx.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, NewVectorIndexError("search", err, "query embedding failed")
	}

	resp, err := idx.client.Query(ctx, idx.collection(), [][]float32{queryEmbedding}, limit, filter)
	if err != nil {
		return nil, NewVectorIndexError("search", err, "")
	}

	return queryResults(resp), nil
}

// GetSimilar finds records similar to the stored record with the given id,
// excluding the record itself.
func (idx *ChromaVectorIndex) GetSimilar(ctx context.Context, id string, limit int) ([]*models.SearchResult, error) {
	resp, err := idx.client.Get(ctx, idx.collection(), []string{id}, nil, 0, 0)
	if err != nil {
		return nil, NewVectorIndexError("get_similar", err, "")
	}
	if len(resp.IDs) == 0 {
		return nil, RecordNotFoundError(id)
	}

	if limit <= 0 {
		limit = 5
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	// Request one extra so the source record can be dropped from the set.
	// The internal query skips the public clamp, which would otherwise cut
	// the over-fetch back down at the maximum limit.
	results, err := idx.query(ctx, resp.Documents[0], limit+1, nil)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.SearchResult, 0, limit)
	for _, r := range results {
		if r.ID == id {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == limit {
			break
		}
	}
	return filtered, nil
}

// DeleteBySource removes every vector indexed from the given source file and
// reports whether anything was removed.
func (idx *ChromaVectorIndex) DeleteBySource(ctx context.Context, sourceFile string) (bool, error) {
	collectionID := idx.collection()

	resp, err := idx.client.Get(ctx, collectionID, nil, map[string]interface{}{"source_file": sourceFile}, 0, 0)
	if err != nil {
		return false, NewVectorIndexError("delete_by_source", err, "")
	}
	if len(resp.IDs) == 0 {
		return false, nil
	}

	if err := idx.client.Delete(ctx, collectionID, resp.IDs); err != nil {
		return false, NewVectorIndexError("delete_by_source", err, "failed to delete chunks for "+sourceFile)
	}

	idx.logger.Printf("Deleted %d chunks for source %s", len(resp.IDs), sourceFile)
	return true, nil
}

// DeleteByID removes a single vector and reports whether it existed.
func (idx *ChromaVectorIndex) DeleteByID(ctx context.Context, id string) (bool, error) {
	collectionID := idx.collection()

	resp, err := idx.client.Get(ctx, collectionID, []string{id}, nil, 0, 0)
	if err != nil {
		return false, NewVectorIndexError("delete_by_id", err, "")
	}
	if len(resp.IDs) == 0 {
		return false, nil
	}

	if err := idx.client.Delete(ctx, collectionID, []string{id}); err != nil {
		return false, NewVectorIndexError("delete_by_id", err, "failed to delete record "+id)
	}
	return true, nil
}

// ClearAll drops every vector by deleting and recreating the collection.
// Irreversible.
func (idx *ChromaVectorIndex) ClearAll(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.client.DeleteCollection(ctx, idx.collectionName); err != nil {
		return NewVectorIndexError("clear_all", err, "failed to drop collection")
	}

	collection, err := idx.client.CreateCollection(ctx, idx.collectionName, nil)
	if err != nil {
		return NewVectorIndexError("clear_all", err, "failed to recreate collection")
	}
	idx.collectionID = collection.ID

	idx.logger.Printf("Cleared vector index (collection=%s)", idx.collectionName)
	return nil
}

// Count returns the number of stored vectors.
func (idx *ChromaVectorIndex) Count(ctx context.Context) (int, error) {
	count, err := idx.client.Count(ctx, idx.collection())
	if err != nil {
		return 0, NewVectorIndexError("count", err, "")
	}
	return count, nil
}

// GetAll returns up to limit stored records for administrative listing. No
// ordering guarantee beyond what the backend provides for one unmutated state.
func (idx *ChromaVectorIndex) GetAll(ctx context.Context, limit int) ([]*models.IndexRecord, error) {
	resp, err := idx.client.Get(ctx, idx.collection(), nil, nil, limit, 0)
	if err != nil {
		return nil, NewVectorIndexError("get_all", err, "")
	}

	records := make([]*models.IndexRecord, len(resp.IDs))
	for i := range resp.IDs {
		var metadata map[string]interface{}
		if i < len(resp.Metadatas) {
			metadata = reconstructMetadata(resp.Metadatas[i])
		}
		content := ""
		if i < len(resp.Documents) {
			content = resp.Documents[i]
		}
		records[i] = &models.IndexRecord{ID: resp.IDs[i], Content: content, Metadata: metadata}
	}
	return records, nil
}

// Statistics reports totals plus a file-type histogram and average chunk size
// computed from a bounded prefix sample of the index.
func (idx *ChromaVectorIndex) Statistics(ctx context.Context) (*models.IndexStats, error) {
	count, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := idx.client.Get(ctx, idx.collection(), nil, nil, statsSampleSize, 0)
	if err != nil {
		return nil, NewVectorIndexError("statistics", err, "")
	}

	fileTypes := make(map[string]int)
	totalSize := 0
	for i := range resp.IDs {
		if i < len(resp.Metadatas) {
			if ft, ok := resp.Metadatas[i]["file_type"].(string); ok {
				fileTypes[ft]++
			}
		}
		if i < len(resp.Documents) {
			totalSize += len(resp.Documents[i])
		}
	}

	avgSize := 0.0
	if len(resp.IDs) > 0 {
		avgSize = float64(totalSize) / float64(len(resp.IDs))
	}

	return &models.IndexStats{
		TotalDocuments:   count,
		FileTypes:        fileTypes,
		AverageChunkSize: avgSize,
		EmbeddingModel:   idx.embedder.Model(),
		CollectionName:   idx.collectionName,
		SampleSize:       len(resp.IDs),
	}, nil
}

// HealthCheck exercises a trivial search and reports index usability. It never
// returns an error; failures are folded into the report.
func (idx *ChromaVectorIndex) HealthCheck(ctx context.Context) *models.IndexHealth {
	health := &models.IndexHealth{Status: "healthy"}

	count, err := idx.Count(ctx)
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}
	health.DocumentCount = count

	if err := idx.embedder.HealthCheck(ctx); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}
	health.EmbedderLoaded = true

	if _, err := idx.Search(ctx, "health check probe", 1, nil); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}
	health.SearchFunctional = true

	return health
}

func (idx *ChromaVectorIndex) Close() error {
	idx.client.Close()
	return nil
}

func queryResults(resp *db.QueryResponse) []*models.SearchResult {
	if len(resp.IDs) == 0 {
		return []*models.SearchResult{}
	}

	ids := resp.IDs[0]
	results := make([]*models.SearchResult, len(ids))
	for i := range ids {
		r := &models.SearchResult{ID: ids[i]}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Content = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = reconstructMetadata(resp.Metadatas[0][i])
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			d := resp.Distances[0][i]
			r.Distance = &d
		}
		results[i] = r
	}
	return results
}

// flattenMetadata passes scalar values through and collects everything else
// into a JSON string under a reserved key, since ChromaDB metadata fields must
// be scalars. reconstructMetadata reverses this on read.
func flattenMetadata(metadata map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(metadata))
	extra := make(map[string]interface{})

	for k, v := range metadata {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64, nil:
			flat[k] = v
		default:
			extra[k] = v
		}
	}

	if len(extra) > 0 {
		if encoded, err := json.Marshal(extra); err == nil {
			flat[additionalMetadataKey] = string(encoded)
		}
	}
	return flat
}

func reconstructMetadata(flat map[string]interface{}) map[string]interface{} {
	if flat == nil {
		return nil
	}

	metadata := make(map[string]interface{}, len(flat))
	for k, v := range flat {
		if k == additionalMetadataKey {
			continue
		}
		metadata[k] = v
	}

	if raw, ok := flat[additionalMetadataKey].(string); ok && raw != "" {
		var extra map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &extra); err == nil {
			for k, v := range extra {
				metadata[k] = v
			}
		} else {
			metadata[additionalMetadataKey] = fmt.Sprintf("unparseable: %s", raw)
		}
	}
	return metadata
}
