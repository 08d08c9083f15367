// Package memtier implements the in-memory hydration tier (C5): a
// fixed-capacity, per-model cache of recently or frequently returned cache
// entries, sitting in front of the scalar store so a repeat hit never needs
// a round trip to PostgreSQL. Two eviction algorithms are available, chosen
// per deployment: ARC and W-TinyLFU.
package memtier

import (
	"sync"

	"github.com/thebtf/semcache/pkg/models"
)

// Evictor is the capacity-bounded key/value cache contract both ARC and
// W-TinyLFU satisfy. Implementations are not safe for concurrent use on
// their own; Tier adds the locking.
type Evictor interface {
	// Get returns the cached entry for id and records the access for the
	// eviction policy's bookkeeping.
	Get(id string) (models.CacheEntry, bool)

	// Put inserts or replaces the entry for id, evicting per the policy if
	// the tier is at capacity.
	Put(id string, entry models.CacheEntry)

	// Remove evicts id unconditionally, e.g. on a remove-by-id request.
	Remove(id string)

	// Len returns the number of entries currently resident.
	Len() int
}

// Tier is a lazily-created, mutex-guarded Evictor scoped to one model. The
// data manager keeps one Tier per model so that one model's working set
// never evicts another's.
type Tier struct {
	mu      sync.Mutex
	evictor Evictor
}

// NewTier wraps an already-constructed Evictor (ARC or W-TinyLFU) for a
// single model.
func NewTier(evictor Evictor) *Tier {
	return &Tier{evictor: evictor}
}

func (t *Tier) Get(id string) (models.CacheEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictor.Get(id)
}

func (t *Tier) Put(id string, entry models.CacheEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictor.Put(id, entry)
}

func (t *Tier) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictor.Remove(id)
}

func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictor.Len()
}
