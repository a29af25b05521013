package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend talks to an embedding server over HTTP. The server is expected
// to accept a JSON body {"texts": [...], "mode": "...", "model": "..."} and
// respond with {"embeddings": [[...], ...]}.
type HTTPBackend struct {
	endpoint   string
	model      string
	dimensions int
	client     *http.Client
}

// NewHTTPBackend creates a backend for the given endpoint URL.
func NewHTTPBackend(endpoint, model string, dimensions int) *HTTPBackend {
	return &HTTPBackend{
		endpoint:   endpoint,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Mode  string   `json:"mode"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed posts the texts to the embedding server and decodes the vectors.
// Server errors (5xx) and transport failures are classified transient;
// client errors (4xx) are fatal.
func (b *HTTPBackend) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts, Mode: string(mode), Model: b.model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, Transient(fmt.Errorf("embed request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, string(msg))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, Transient(err)
		}
		return nil, err
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(decoded.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d texts", len(decoded.Embeddings), len(texts))
	}

	return decoded.Embeddings, nil
}

// Model returns the configured model identifier.
func (b *HTTPBackend) Model() string {
	return b.model
}

// Dimensions returns the configured vector dimensionality.
func (b *HTTPBackend) Dimensions() int {
	return b.dimensions
}

// Close is a no-op for the HTTP backend.
func (b *HTTPBackend) Close() error {
	return nil
}
