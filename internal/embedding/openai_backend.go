package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend embeds text through OpenAI's embeddings API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIBackend builds a Backend from an API key and model name. dim must
// be supplied by the caller; OpenAI does not report it inline with the
// embedding response.
func NewOpenAIBackend(apiKey, model string, dim int) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: openai api key is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding: dim must be positive")
	}
	return &OpenAIBackend{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}, nil
}

// Embed calls OpenAI's embeddings endpoint for a single prompt.
func (b *OpenAIBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(b.model),
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: openai request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: openai returned no data")
	}

	vec := resp.Data[0].Embedding
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

func (b *OpenAIBackend) Dim() int     { return b.dim }
func (b *OpenAIBackend) Name() string { return "openai:" + b.model }

var _ Backend = (*OpenAIBackend)(nil)
