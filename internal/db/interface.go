// Package db defines the scalar store contract (C3): the authoritative
// record of every cache entry, independent of whichever vector backend or
// in-memory tier is configured.
package db

import (
	"context"

	"github.com/thebtf/semcache/pkg/models"
)

// ScalarStore is the persistence contract the data manager (C6) drives.
// Every method is scoped implicitly or explicitly to a model so that two
// models never share rows.
type ScalarStore interface {
	// BatchInsert assigns ids (via uuid) to entries lacking one and persists
	// them, returning the entries with IDs populated in the same order.
	BatchInsert(ctx context.Context, entries []models.CacheEntry) ([]models.CacheEntry, error)

	// GetByID returns the entry for id, or (nil, nil) if missing or soft-deleted.
	GetByID(ctx context.Context, model, id string) (*models.CacheEntry, error)

	// GetByIDs batches GetByID, returning only entries found and not deleted.
	GetByIDs(ctx context.Context, model string, ids []string) ([]models.CacheEntry, error)

	// IncrementHitCount bumps an entry's hit counter by one.
	IncrementHitCount(ctx context.Context, model, id string) error

	// MarkDeleted soft-deletes the given ids, returning the count affected.
	MarkDeleted(ctx context.Context, model string, ids []string) (int, error)

	// DeleteModel hard-truncates every row for model, returning the count removed.
	DeleteModel(ctx context.Context, model string) (int, error)

	// InsertQueryLog appends one audit row. Failures are logged, never
	// propagated to the caller's response.
	InsertQueryLog(ctx context.Context, entry models.QueryLogEntry) error
}
