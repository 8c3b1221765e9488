package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient is a RemoteCaller backed by an HTTP embedding service speaking
// Ollama's /api/embeddings protocol, one request per text (the service has
// no native batch endpoint, so HTTPClient fans requests out sequentially;
// Provider is what imposes the real batch ceiling).
type HTTPClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPClient builds an HTTPClient with a sensible per-request timeout,
// matching the spec's default 30s HTTP timeout.
func NewHTTPClient(baseURL, model string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// statusError carries the HTTP status so isTransient can classify it
// without string-matching the error text.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string   { return fmt.Sprintf("embed request failed: status %d: %s", e.status, e.body) }
func (e *statusError) StatusCode() int { return e.status }

func (c *HTTPClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := make([]byte, 256)
		n, _ := resp.Body.Read(buf)
		return nil, &statusError{status: resp.StatusCode, body: string(buf[:n])}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed decode: %w", err)
	}
	vals := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vals[i] = float32(v)
	}
	return vals, nil
}

// EmbedBatch satisfies RemoteCaller.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
