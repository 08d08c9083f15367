// Package vector defines the per-model approximate-nearest-neighbour index
// contract (C2) that concrete backends (pgvector, milvus) implement.
package vector

import "context"

// CreateResult reports whether Create made a new collection or found one
// already there.
type CreateResult string

const (
	CreateResultCreated        CreateResult = "created"
	CreateResultAlreadyExists  CreateResult = "already_exists"
)

// Record is one (id, embedding) pair submitted to MulAdd.
type Record struct {
	ID        string
	Embedding []float32
}

// Hit is one ranked search result. Score is in the backend's native units:
// cosine similarity (higher is better) or L2 distance (lower is better),
// per the engine's configured metric.
type Hit struct {
	ID    string
	Score float64
}

// DefaultTopK is the sentinel callers pass to request the backend's
// configured default fan-out instead of an explicit top_k.
const DefaultTopK = 0

// Client is the per-model vector index contract (C2 in the design).
// Implementations are responsible for scoping every operation to Model and
// for the metric-appropriate result ordering (ascending for L2, descending
// for cosine); the data manager does not re-sort search results.
type Client interface {
	// Create provisions the named model's collection if it does not exist.
	Create(ctx context.Context, model string) (CreateResult, error)

	// MulAdd inserts or upserts a batch of (id, embedding) records scoped to model.
	// All embeddings must match the engine's configured dimension.
	MulAdd(ctx context.Context, model string, records []Record) error

	// Search returns up to topK hits for the query vector, ordered per the
	// configured metric. topK <= 0 uses the backend's configured default.
	Search(ctx context.Context, model string, query []float32, topK int) ([]Hit, error)

	// Delete removes the given ids from model's collection, returning the
	// count actually removed.
	Delete(ctx context.Context, model string, ids []string) (int, error)

	// RebuildCollection drops and recreates model's collection empty.
	RebuildCollection(ctx context.Context, model string) error

	// Flush forces any buffered writes to become visible to Search.
	Flush(ctx context.Context) error
}
