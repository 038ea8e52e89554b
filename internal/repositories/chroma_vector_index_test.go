package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/db"
	"rag-chat/internal/models"
)

// fakeEmbedder produces a deterministic 4-dim vector per text so the fake
// backend can rank by real distances.
type fakeEmbedder struct {
	healthy bool
	fail    bool
}

func (f *fakeEmbedder) vector(text string) []float32 {
	var h uint32
	for _, r := range text {
		h = h*31 + uint32(r)
	}
	return []float32{
		float32(h%97) / 97,
		float32(h%89) / 89,
		float32(h%83) / 83,
		float32(len(text)%70) / 70,
	}
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) Model() string { return "fake-model" }

func (f *fakeEmbedder) HealthCheck(ctx context.Context) error {
	if !f.healthy {
		return errors.New("not loaded")
	}
	return nil
}

type fakeRecord struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]interface{}
}

// fakeChroma is an in-memory stand-in for the ChromaDB v2 HTTP API.
type fakeChroma struct {
	mu          sync.Mutex
	collections map[string]string // name -> id
	records     map[string][]fakeRecord
	nextID      int
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{
		collections: make(map[string]string),
		records:     make(map[string][]fakeRecord),
	}
}

func (f *fakeChroma) handler() http.Handler {
	mux := http.NewServeMux()
	prefix := "/api/v2/tenants/default_tenant/databases/default_database"

	mux.HandleFunc("GET "+prefix+"/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		id, ok := f.collections[name]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "name": name})
	})

	mux.HandleFunc("POST "+prefix+"/collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		id := fmt.Sprintf("col-%d", f.nextID)
		f.collections[body.Name] = id
		f.records[id] = nil
		json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "name": body.Name})
	})

	mux.HandleFunc("DELETE "+prefix+"/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if id, ok := f.collections[name]; ok {
			delete(f.collections, name)
			delete(f.records, id)
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET "+prefix+"/collections/{id}/count", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(len(f.records[r.PathValue("id")]))
	})

	mux.HandleFunc("POST "+prefix+"/collections/{id}/add", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			IDs        []string                 `json:"ids"`
			Documents  []string                 `json:"documents"`
			Embeddings [][]float32              `json:"embeddings"`
			Metadatas  []map[string]interface{} `json:"metadatas"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		id := r.PathValue("id")
		for i := range body.IDs {
			rec := fakeRecord{ID: body.IDs[i], Document: body.Documents[i], Embedding: body.Embeddings[i]}
			if i < len(body.Metadatas) {
				rec.Metadata = body.Metadatas[i]
			}
			f.records[id] = append(f.records[id], rec)
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST "+prefix+"/collections/{id}/get", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			IDs   []string               `json:"ids"`
			Where map[string]interface{} `json:"where"`
			Limit int                    `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		wanted := make(map[string]bool)
		for _, id := range body.IDs {
			wanted[id] = true
		}

		var ids, documents []string
		var metadatas []map[string]interface{}
		for _, rec := range f.records[r.PathValue("id")] {
			if len(wanted) > 0 && !wanted[rec.ID] {
				continue
			}
			if !matchesWhere(rec.Metadata, body.Where) {
				continue
			}
			ids = append(ids, rec.ID)
			documents = append(documents, rec.Document)
			metadatas = append(metadatas, rec.Metadata)
			if body.Limit > 0 && len(ids) >= body.Limit {
				break
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ids": ids, "documents": documents, "metadatas": metadatas,
		})
	})

	mux.HandleFunc("POST "+prefix+"/collections/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			QueryEmbeddings [][]float32            `json:"query_embeddings"`
			NResults        int                    `json:"n_results"`
			Where           map[string]interface{} `json:"where"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		query := body.QueryEmbeddings[0]

		type scored struct {
			rec  fakeRecord
			dist float32
		}
		var candidates []scored
		for _, rec := range f.records[r.PathValue("id")] {
			if !matchesWhere(rec.Metadata, body.Where) {
				continue
			}
			candidates = append(candidates, scored{rec, l2(query, rec.Embedding)})
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		if body.NResults > 0 && len(candidates) > body.NResults {
			candidates = candidates[:body.NResults]
		}

		ids := make([]string, len(candidates))
		documents := make([]string, len(candidates))
		metadatas := make([]map[string]interface{}, len(candidates))
		distances := make([]float32, len(candidates))
		for i, c := range candidates {
			ids[i] = c.rec.ID
			documents[i] = c.rec.Document
			metadatas[i] = c.rec.Metadata
			distances[i] = c.dist
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":       [][]string{ids},
			"documents": [][]string{documents},
			"metadatas": [][]map[string]interface{}{metadatas},
			"distances": [][]float32{distances},
		})
	})

	mux.HandleFunc("POST "+prefix+"/collections/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			IDs []string `json:"ids"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		doomed := make(map[string]bool)
		for _, id := range body.IDs {
			doomed[id] = true
		}
		id := r.PathValue("id")
		kept := f.records[id][:0]
		for _, rec := range f.records[id] {
			if !doomed[rec.ID] {
				kept = append(kept, rec)
			}
		}
		f.records[id] = kept
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func matchesWhere(metadata, where map[string]interface{}) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func newTestIndex(t *testing.T) (*ChromaVectorIndex, *fakeEmbedder) {
	t.Helper()

	server := httptest.NewServer(newFakeChroma().handler())
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	client := db.NewChromaClient(db.ChromaConfig{Host: parsed.Hostname(), Port: port})
	embedder := &fakeEmbedder{healthy: true}

	idx, err := NewChromaVectorIndex(context.Background(), client, embedder, "test_documents",
		log.New(os.Stderr, "[test] ", log.LstdFlags))
	require.NoError(t, err)
	return idx, embedder
}

func sampleChunks() []*models.DocumentChunk {
	return []*models.DocumentChunk{
		{
			Content:    "Refunds are processed within five business days of request.",
			SourceFile: "policy.txt",
			ChunkIndex: 0,
			ChunkID:    "policy_0",
			Metadata:   map[string]interface{}{"source_file": "policy.txt", "file_type": "txt", "chunk_index": 0},
		},
		{
			Content:    "Shipping costs are the responsibility of the customer.",
			SourceFile: "policy.txt",
			ChunkIndex: 1,
			ChunkID:    "policy_1",
			Metadata:   map[string]interface{}{"source_file": "policy.txt", "file_type": "txt", "chunk_index": 1},
		},
		{
			Content:    "The quarterly report shows steady growth in new accounts.",
			SourceFile: "report.pdf",
			ChunkIndex: 0,
			ChunkID:    "report_0",
			Metadata:   map[string]interface{}{"source_file": "report.pdf", "file_type": "pdf", "chunk_index": 0},
		},
	}
}

func TestAddDocumentsAndCount(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	ids, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "ids must be unique")
		seen[id] = true
	}

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAddDocumentsEmpty(t *testing.T) {
	idx, _ := newTestIndex(t)

	_, err := idx.AddDocuments(context.Background(), nil)
	require.Error(t, err)

	var idxErr *VectorIndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, "add_documents", idxErr.Operation)
}

func TestAddDocumentsEmbeddingFailurePersistsNothing(t *testing.T) {
	idx, embedder := newTestIndex(t)
	ctx := context.Background()

	embedder.fail = true
	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.Error(t, err)

	embedder.fail = false
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSearchOrdersByDistance(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	// An exact-content query embeds to distance zero against its own chunk.
	results, err := idx.Search(ctx, "Refunds are processed within five business days of request.", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "Refunds are processed within five business days of request.", results[0].Content)
	require.NotNil(t, results[0].Distance)
	assert.InDelta(t, 0.0, float64(*results[0].Distance), 1e-6)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, *results[i-1].Distance, *results[i].Distance)
	}
}

func TestSearchBlankQuerySkipsEmbedding(t *testing.T) {
	idx, embedder := newTestIndex(t)

	embedder.fail = true // would error if the embedder were invoked
	results, err := idx.Search(context.Background(), "   ", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchWithFilter(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	results, err := idx.Search(ctx, "growth", 10, map[string]interface{}{"source_file": "report.pdf"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "report.pdf", results[0].Metadata["source_file"])
}

func TestDeleteBySource(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	deleted, err := idx.DeleteBySource(ctx, "policy.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err = idx.DeleteBySource(ctx, "nonexistent.txt")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteByID(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	ids, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	deleted, err := idx.DeleteByID(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = idx.DeleteByID(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetSimilarExcludesSelf(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	ids, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	results, err := idx.GetSimilar(ctx, ids[0], 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, ids[0], r.ID)
	}

	_, err = idx.GetSimilar(ctx, "missing-id", 5)
	require.Error(t, err)
}

func TestGetSimilarAtMaximumLimit(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	chunks := make([]*models.DocumentChunk, maxSearchLimit+1)
	for i := range chunks {
		chunks[i] = &models.DocumentChunk{
			Content:    fmt.Sprintf("Distinct filler sentence number %d for neighbor lookups.", i),
			SourceFile: "filler.txt",
			ChunkIndex: i,
			ChunkID:    fmt.Sprintf("filler_%d", i),
			Metadata:   map[string]interface{}{"source_file": "filler.txt", "file_type": "txt"},
		}
	}
	ids, err := idx.AddDocuments(ctx, chunks)
	require.NoError(t, err)

	// Asking for the maximum must still yield a full set of neighbors after
	// the probe record is excluded.
	results, err := idx.GetSimilar(ctx, ids[0], maxSearchLimit)
	require.NoError(t, err)
	assert.Len(t, results, maxSearchLimit)
	for _, r := range results {
		assert.NotEqual(t, ids[0], r.ID)
	}
}

func TestSearchRepeatsSameOrder(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	first, err := idx.Search(ctx, "quarterly growth", 10, nil)
	require.NoError(t, err)
	second, err := idx.Search(ctx, "quarterly growth", 10, nil)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestClearAll(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	require.NoError(t, idx.ClearAll(ctx))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// The recreated collection accepts new writes.
	_, err = idx.AddDocuments(ctx, sampleChunks()[:1])
	require.NoError(t, err)
}

func TestStatistics(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.AddDocuments(ctx, sampleChunks())
	require.NoError(t, err)

	stats, err := idx.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 2, stats.FileTypes["txt"])
	assert.Equal(t, 1, stats.FileTypes["pdf"])
	assert.Greater(t, stats.AverageChunkSize, 0.0)
	assert.Equal(t, "fake-model", stats.EmbeddingModel)
	assert.Equal(t, 3, stats.SampleSize)
}

func TestMetadataRoundTrip(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	chunks := []*models.DocumentChunk{{
		Content:    "Keyword enriched chunk content for metadata round trip checks.",
		SourceFile: "notes.md",
		ChunkIndex: 0,
		ChunkID:    "notes_0",
		Metadata: map[string]interface{}{
			"source_file": "notes.md",
			"file_type":   "markdown",
			"keywords":    []interface{}{"metadata", "chunk"},
			"structure":   map[string]interface{}{"type": "object"},
		},
	}}

	_, err := idx.AddDocuments(ctx, chunks)
	require.NoError(t, err)

	records, err := idx.GetAll(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	metadata := records[0].Metadata
	assert.Equal(t, "notes.md", metadata["source_file"])
	assert.Equal(t, []interface{}{"metadata", "chunk"}, metadata["keywords"])
	assert.Equal(t, map[string]interface{}{"type": "object"}, metadata["structure"])
	assert.NotContains(t, metadata, "additional_metadata")
}

func TestHealthCheck(t *testing.T) {
	idx, embedder := newTestIndex(t)
	ctx := context.Background()

	health := idx.HealthCheck(ctx)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.EmbedderLoaded)
	assert.True(t, health.SearchFunctional)

	embedder.healthy = false
	health = idx.HealthCheck(ctx)
	assert.Equal(t, "unhealthy", health.Status)
	assert.NotEmpty(t, health.Error)
}

func TestFlattenMetadata(t *testing.T) {
	flat := flattenMetadata(map[string]interface{}{
		"name":  "doc",
		"count": 3,
		"tags":  []string{"a", "b"},
	})

	assert.Equal(t, "doc", flat["name"])
	assert.Equal(t, 3, flat["count"])
	_, isString := flat["additional_metadata"].(string)
	assert.True(t, isString)
	assert.NotContains(t, flat, "tags")
}
