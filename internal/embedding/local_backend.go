package embedding

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// LocalBackend calls a sidecar embedding service over HTTP, for deployments
// that run their own embedding model instead of paying for a hosted API.
type LocalBackend struct {
	serverURL string
	dim       int
	client    *http.Client
}

// NewLocalBackend builds a Backend against a local embedding server
// exposing POST {serverURL}/embed.
func NewLocalBackend(serverURL string, dim int) (*LocalBackend, error) {
	if serverURL == "" {
		serverURL = "http://localhost:50000"
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding: dim must be positive")
	}
	return &LocalBackend{
		serverURL: serverURL,
		dim:       dim,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type localEmbedRequest struct {
	Text string `json:"text"`
}

type localEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts text to the local server and decodes its embedding response.
func (b *LocalBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: local request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: local server returned %d", resp.StatusCode)
	}

	var result localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(result.Embedding) != b.dim {
		return nil, fmt.Errorf("embedding: local server returned dim %d, want %d", len(result.Embedding), b.dim)
	}
	return result.Embedding, nil
}

func (b *LocalBackend) Dim() int     { return b.dim }
func (b *LocalBackend) Name() string { return "local:" + b.serverURL }

var _ Backend = (*LocalBackend)(nil)
