// Package objectstore defines the optional blob-storage contract (C4) used
// when a cached Answer is too large, or not textual, to inline into the
// scalar store: the answer row then holds an opaque handle resolved here.
package objectstore

import "context"

// Store is the contract an Answer's object handle is resolved against.
// Implementations are keyed by an opaque handle string; callers never
// construct or parse a handle's internal shape.
type Store interface {
	// Put uploads data and returns a handle that Get can resolve later.
	Put(ctx context.Context, model, id string, data []byte) (handle string, err error)

	// Get resolves a handle back to its bytes.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the blob behind handle. Deleting an unknown handle is
	// not an error.
	Delete(ctx context.Context, handle string) error
}
