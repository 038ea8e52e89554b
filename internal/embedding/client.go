package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Embedder maps text to fixed-length numeric vectors. Every call against one
// index instance must return vectors of the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
	HealthCheck(ctx context.Context) error
}

// Client talks to an HTTP embedding backend (a sentence-transformers style
// service exposing /embed and /embed/batch compute endpoints).
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	retries    int

	// dimension is pinned by the first successful embedding; later responses
	// with a different dimension fail fast. The client is shared across
	// request handlers, so the pin is guarded.
	mu        sync.Mutex
	dimension int
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type embedSingleRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
}

type embedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
}

// NewClient creates an embedding client with retry support.
func NewClient(baseURL, model string, timeout time.Duration, retries int) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: retries,
	}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Embed generates one embedding per input text in a single batched call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided to embed")
	}

	var result embedBatchResponse
	if err := c.post(ctx, "/embed/batch", &embedRequest{Texts: texts, Model: c.model}, &result); err != nil {
		return nil, fmt.Errorf("batch embedding failed: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(result.Embeddings), len(texts))
	}
	if err := c.checkDimension(result.Dimension); err != nil {
		return nil, err
	}

	return result.Embeddings, nil
}

// EmbedQuery generates a single embedding for a query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var result embedResponse
	if err := c.post(ctx, "/embed", &embedSingleRequest{Text: text, Model: c.model}, &result); err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	if err := c.checkDimension(result.Dimension); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

// HealthCheck verifies the embedding backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding backend not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding backend returned status %d", resp.StatusCode)
	}
	return nil
}

// checkDimension pins the embedding dimensionality on first use. A backend
// that changes dimensionality mid-run would corrupt the index.
func (c *Client) checkDimension(dim int) error {
	if dim == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = dim
		return nil
	}
	if dim != c.dimension {
		return fmt.Errorf("embedding dimension changed from %d to %d", c.dimension, dim)
	}
	return nil
}

// post issues a JSON POST with exponential backoff on transport errors and
// 5xx responses. Client errors (4xx) are not retried.
func (c *Client) post(ctx context.Context, endpoint string, body, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.makeRequest(ctx, endpoint, body)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
			continue
		}

		return parseResponse(resp, result)
	}

	return fmt.Errorf("request failed after %d retries: %w", c.retries, lastErr)
}

func (c *Client) makeRequest(ctx context.Context, endpoint string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

func parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
