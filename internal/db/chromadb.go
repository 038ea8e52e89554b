package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChromaClient wraps HTTP calls to the ChromaDB v2 API. A hand-rolled client
// avoids compatibility issues with the official Go client library.
type ChromaClient struct {
	serverURL  string
	baseURL    string
	httpClient *http.Client
}

// ChromaConfig holds configuration for a ChromaDB connection.
type ChromaConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
}

// Collection represents a ChromaDB collection.
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GetResponse is the response shape of a collection get request.
type GetResponse struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// QueryResponse is the response shape of a similarity query. The outer slices
// are indexed per query embedding.
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaClient creates a ChromaDB client for the v2 API.
func NewChromaClient(config ChromaConfig) *ChromaClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	serverURL := fmt.Sprintf("http://%s:%d", config.Host, config.Port)

	return &ChromaClient{
		serverURL: serverURL,
		// The v2 API scopes collection operations by tenant and database.
		baseURL: fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s",
			serverURL, config.Tenant, config.Database),
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// doJSON issues a request with an optional JSON payload and decodes the
// response into out when out is non-nil. Non-2xx responses are returned as
// errors with the body preserved.
func (c *ChromaClient) doJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed (status %d): %s", method, url, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Heartbeat checks if ChromaDB is alive.
func (c *ChromaClient) Heartbeat(ctx context.Context) error {
	return c.doJSON(ctx, "GET", c.serverURL+"/api/v2/heartbeat", nil, nil)
}

// GetCollection retrieves a collection by name.
func (c *ChromaClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	if err := c.doJSON(ctx, "GET", url, nil, &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}

// CreateCollection creates a new collection.
func (c *ChromaClient) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	if metadata == nil {
		metadata = map[string]interface{}{"hnsw:space": "cosine"}
	}

	var collection Collection
	payload := map[string]interface{}{"name": name, "metadata": metadata}
	if err := c.doJSON(ctx, "POST", c.baseURL+"/collections", payload, &collection); err != nil {
		return nil, err
	}
	return &collection, nil
}

// GetOrCreateCollection loads a collection, creating it if it does not exist.
func (c *ChromaClient) GetOrCreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	collection, err := c.GetCollection(ctx, name)
	if err == nil {
		return collection, nil
	}
	return c.CreateCollection(ctx, name, metadata)
}

// DeleteCollection deletes a collection and everything in it.
func (c *ChromaClient) DeleteCollection(ctx context.Context, name string) error {
	return c.doJSON(ctx, "DELETE", fmt.Sprintf("%s/collections/%s", c.baseURL, name), nil, nil)
}

// Count returns the number of vectors in a collection.
func (c *ChromaClient) Count(ctx context.Context, collectionID string) (int, error) {
	var count int
	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, collectionID)
	if err := c.doJSON(ctx, "GET", url, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Add stores documents with precomputed embeddings in a collection.
func (c *ChromaClient) Add(ctx context.Context, collectionID string, ids, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
	}
	if metadatas != nil {
		payload["metadatas"] = metadatas
	}
	url := fmt.Sprintf("%s/collections/%s/add", c.baseURL, collectionID)
	return c.doJSON(ctx, "POST", url, payload, nil)
}

// Query searches a collection for the nearest neighbors of each query
// embedding, optionally restricted by a metadata filter.
func (c *ChromaClient) Query(ctx context.Context, collectionID string, queryEmbeddings [][]float32, nResults int, where map[string]interface{}) (*QueryResponse, error) {
	payload := map[string]interface{}{
		"query_embeddings": queryEmbeddings,
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	var queryResp QueryResponse
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, collectionID)
	if err := c.doJSON(ctx, "POST", url, payload, &queryResp); err != nil {
		return nil, err
	}
	return &queryResp, nil
}

// Get retrieves documents by id and/or metadata filter. A zero limit fetches
// everything (a large server-side limit is used).
func (c *ChromaClient) Get(ctx context.Context, collectionID string, ids []string, where map[string]interface{}, limit, offset int) (*GetResponse, error) {
	payload := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	if len(ids) > 0 {
		payload["ids"] = ids
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	} else {
		payload["limit"] = 100000
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	var getResp GetResponse
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, collectionID)
	if err := c.doJSON(ctx, "POST", url, payload, &getResp); err != nil {
		return nil, err
	}
	return &getResp, nil
}

// Delete removes documents by id from a collection.
func (c *ChromaClient) Delete(ctx context.Context, collectionID string, ids []string) error {
	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, collectionID)
	return c.doJSON(ctx, "POST", url, map[string]interface{}{"ids": ids}, nil)
}

// Close releases idle connections.
func (c *ChromaClient) Close() {
	c.httpClient.CloseIdleConnections()
}
