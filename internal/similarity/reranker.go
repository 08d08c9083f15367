package similarity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Reranker re-scores the top candidate hits returned by the vector index,
// for deployments that want a second, more expensive pass (e.g. a
// cross-encoder call) before trusting a match. It is optional; when unset
// the evaluator's Accept/Rank decide alone.
type Reranker interface {
	// Rerank returns a new score for candidate given the original query
	// text, replacing the vector index's score for the final Accept check.
	Rerank(ctx context.Context, query, candidate string) (float64, error)
}

// NoopReranker returns a zero score for every candidate, which the adapter
// treats as no rerank so the vector index's score stands; used when
// RerankerEnabled is false.
type NoopReranker struct{}

func (NoopReranker) Rerank(_ context.Context, _, _ string) (float64, error) {
	return 0, nil
}

var _ Reranker = NoopReranker{}

// CrossEncoderReranker stands in for a dedicated cross-encoder model by
// asking a chat completion to judge semantic equivalence directly,
// replacing the vector index's embedding-distance score with the
// finer-grained judgment for the candidates that reach it. It is only
// invoked for candidates that already cleared the vector search, so its
// extra latency is paid per-candidate, not per-query.
type CrossEncoderReranker struct {
	client *openai.Client
	model  string
}

// NewCrossEncoderReranker builds a Reranker backed by chatModel (e.g.
// "gpt-4o-mini") through the same OpenAI account as the embedding backend.
func NewCrossEncoderReranker(apiKey, chatModel string) (*CrossEncoderReranker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("similarity: reranker api key is required")
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	return &CrossEncoderReranker{client: openai.NewClient(apiKey), model: chatModel}, nil
}

// Rerank asks the chat model to score, from 0 to 100, how well candidate
// would answer the same underlying need as query, returning that score
// normalized to [0,1].
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query, candidate string) (float64, error) {
	prompt := fmt.Sprintf(
		"Score from 0 to 100 how semantically equivalent these two prompts are, "+
			"meaning a cached answer to one would satisfy the other. "+
			"Reply with only the number.\n\nPrompt A: %s\n\nPrompt B: %s",
		query, candidate,
	)
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		return 0, fmt.Errorf("similarity: reranker chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("similarity: reranker returned no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("similarity: reranker non-numeric response %q: %w", raw, err)
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n / 100, nil
}

var _ Reranker = (*CrossEncoderReranker)(nil)
