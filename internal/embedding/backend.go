// Package embedding implements the dispatcher (C1): a pool of workers that
// turn pre-processed prompt text into vectors, backed by a pluggable
// Backend so the engine can run against OpenAI or a local sidecar
// embedding server without changing callers.
package embedding

import "context"

// Backend turns text into a fixed-dimension vector.
type Backend interface {
	// Embed computes the embedding for a single pre-processed prompt string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dim returns the backend's fixed embedding dimension.
	Dim() int

	// Name identifies the backend for logging, e.g. "openai:text-embedding-3-small".
	Name() string
}
