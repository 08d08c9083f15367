// Package datamanager implements the data manager (C6): the orchestration
// layer that keeps the vector index, scalar store, and in-memory tier
// consistent for every import, search, fetch, and delete the adapter
// drives, all scoped by normalized model name.
package datamanager

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/semcache/internal/db"
	"github.com/thebtf/semcache/internal/memtier"
	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/pkg/models"
)

// EvictionPolicy selects which Evictor NewTier builds for a model the first
// time the manager sees it.
type EvictionPolicy string

const (
	EvictionARC      EvictionPolicy = "arc"
	EvictionWTinyLFU EvictionPolicy = "wtinylfu"
)

// SearchHit pairs a hydrated cache entry with its similarity score, in the
// vector index's native score units.
type SearchHit struct {
	Entry models.CacheEntry
	Score float64
}

// Manager is the C6 orchestrator: one vector.Client, one db.ScalarStore,
// and a lazily-created memtier.Tier per model.
type Manager struct {
	vectorClient vector.Client
	scalarStore  db.ScalarStore
	policy       EvictionPolicy
	tierCapacity int
	windowPct    float64
	dimension    int
	normalize    bool

	tiersMu sync.Mutex
	tiers   map[string]*memtier.Tier
}

// New builds a Manager. tierCapacity and windowPct configure every
// per-model tier created lazily as new models are seen. dimension is the
// engine's fixed vector width (invariant 3: insert/search with any other
// length fails); normalize applies the engine's fixed unit-normalisation
// choice (invariant 2) to every embedding before it reaches the vector
// index or the scalar store.
func New(vc vector.Client, ss db.ScalarStore, policy EvictionPolicy, tierCapacity int, windowPct float64, dimension int, normalize bool) *Manager {
	return &Manager{
		vectorClient: vc,
		scalarStore:  ss,
		policy:       policy,
		tierCapacity: tierCapacity,
		windowPct:    windowPct,
		dimension:    dimension,
		normalize:    normalize,
		tiers:        make(map[string]*memtier.Tier),
	}
}

// checkDimension enforces invariant 3: every embedding must match the
// engine's fixed vector width.
func (m *Manager) checkDimension(v []float32) error {
	if m.dimension > 0 && len(v) != m.dimension {
		return fmt.Errorf("data manager: embedding has dimension %d, want %d", len(v), m.dimension)
	}
	return nil
}

// normalizeVec rescales v to unit L2 norm in place when the engine is
// configured to normalise (invariant 2); a zero vector is left untouched to
// avoid a divide-by-zero.
func normalizeVec(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
}

func (m *Manager) tierFor(model string) *memtier.Tier {
	m.tiersMu.Lock()
	defer m.tiersMu.Unlock()
	if t, ok := m.tiers[model]; ok {
		return t
	}

	var evictor memtier.Evictor
	if m.policy == EvictionWTinyLFU {
		evictor = memtier.NewWTinyLFU(m.tierCapacity, m.windowPct)
	} else {
		evictor = memtier.NewARC(m.tierCapacity)
	}
	t := memtier.NewTier(evictor)
	m.tiers[model] = t
	return t
}

// EnsureCollection provisions model's vector collection and tier ahead of
// its first insert, without touching the scalar store.
func (m *Manager) EnsureCollection(ctx context.Context, model string) (vector.CreateResult, error) {
	res, err := m.vectorClient.Create(ctx, model)
	if err != nil {
		return "", fmt.Errorf("data manager: ensure collection: %w", err)
	}
	m.tierFor(model)
	return res, nil
}

// Import persists entries to the scalar store, warms the in-memory tier,
// and then indexes their embeddings in the vector store, all scoped to model.
// Entries must already carry an Embedding; the model field on each entry is
// overwritten with model.
func (m *Manager) Import(ctx context.Context, model string, entries []models.CacheEntry) ([]models.CacheEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i := range entries {
		entries[i].Model = model
		if err := m.checkDimension(entries[i].Embedding); err != nil {
			return nil, err
		}
		if m.normalize {
			normalizeVec(entries[i].Embedding)
		}
	}

	if _, err := m.vectorClient.Create(ctx, model); err != nil {
		return nil, fmt.Errorf("data manager: create collection: %w", err)
	}

	saved, err := m.scalarStore.BatchInsert(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("data manager: batch insert: %w", err)
	}

	tier := m.tierFor(model)
	for _, e := range saved {
		tier.Put(e.ID, e)
	}

	records := make([]vector.Record, 0, len(saved))
	for _, e := range saved {
		if len(e.Embedding) == 0 {
			continue
		}
		records = append(records, vector.Record{ID: e.ID, Embedding: e.Embedding})
	}
	if len(records) > 0 {
		if err := m.vectorClient.MulAdd(ctx, model, records); err != nil {
			return nil, fmt.Errorf("data manager: index embeddings: %w", err)
		}
	}

	return saved, nil
}

// Search runs the vector index for query, scoped to model, and hydrates
// each hit's CacheEntry from the in-memory tier, falling back to the
// scalar store and backfilling the tier on a tier miss. Soft-deleted
// entries are filtered out of the result.
func (m *Manager) Search(ctx context.Context, model string, query []float32, topK int) ([]SearchHit, error) {
	if err := m.checkDimension(query); err != nil {
		return nil, err
	}
	if m.normalize {
		normalizeVec(query)
	}
	hits, err := m.vectorClient.Search(ctx, model, query, topK)
	if err != nil {
		return nil, fmt.Errorf("data manager: vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	tier := m.tierFor(model)
	out := make([]SearchHit, 0, len(hits))

	var missIDs []string
	tierHits := make(map[string]models.CacheEntry)
	for _, h := range hits {
		if e, ok := tier.Get(h.ID); ok {
			tierHits[h.ID] = e
			continue
		}
		missIDs = append(missIDs, h.ID)
	}

	byID := make(map[string]models.CacheEntry)
	if len(missIDs) > 0 {
		hydrated, err := m.scalarStore.GetByIDs(ctx, model, missIDs)
		if err != nil {
			return nil, fmt.Errorf("data manager: hydrate from scalar store: %w", err)
		}
		for _, e := range hydrated {
			byID[e.ID] = e
			tier.Put(e.ID, e)
		}
	}

	// Results keep the vector index's order whether a hit came from the tier
	// or from the scalar store.
	for _, h := range hits {
		e, ok := tierHits[h.ID]
		if !ok {
			e, ok = byID[h.ID]
		}
		if !ok || e.Deleted {
			continue // deleted between index and scalar store, or truncated
		}
		out = append(out, SearchHit{Entry: e, Score: h.Score})
	}
	return out, nil
}

// GetScalarData returns one entry by id scoped to model, checking the tier
// first.
func (m *Manager) GetScalarData(ctx context.Context, model, id string) (*models.CacheEntry, error) {
	if e, ok := m.tierFor(model).Get(id); ok {
		if e.Deleted {
			return nil, nil
		}
		return &e, nil
	}
	e, err := m.scalarStore.GetByID(ctx, model, id)
	if err != nil {
		return nil, fmt.Errorf("data manager: get scalar data: %w", err)
	}
	if e != nil {
		m.tierFor(model).Put(e.ID, *e)
	}
	return e, nil
}

// IncrementHitCount bumps the scalar store's hit counter and keeps the
// tier's cached copy in sync.
func (m *Manager) IncrementHitCount(ctx context.Context, model, id string) error {
	if err := m.scalarStore.IncrementHitCount(ctx, model, id); err != nil {
		return fmt.Errorf("data manager: increment hit count: %w", err)
	}
	if e, ok := m.tierFor(model).Get(id); ok {
		e.HitCount++
		m.tierFor(model).Put(id, e)
	}
	return nil
}

// RemoveStatus reports the outcome of a delete/truncate against the scalar
// store and the vector index separately, so a caller can tell a full
// success apart from a partial one instead of only seeing a row count.
type RemoveStatus struct {
	ScalarRemoved int
	VectorOK      bool
	VectorErr     error
}

// Partial reports whether the scalar store succeeded but the vector side
// did not, i.e. the scalar store and vector index have diverged.
func (s RemoveStatus) Partial() bool {
	return !s.VectorOK
}

// DeleteByIDs soft-deletes the given ids in the scalar store and removes
// them from the vector index concurrently (the two backends are
// independent once the id list is known), then evicts them from the tier.
// A vector-delete failure is reported in the returned RemoveStatus rather
// than swallowed: the scalar store stays the source of truth for which
// entries are deleted, but the caller can still see the vector index is
// now out of sync.
func (m *Manager) DeleteByIDs(ctx context.Context, model string, ids []string) (RemoveStatus, error) {
	var n int
	var vectorErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		n, err = m.scalarStore.MarkDeleted(gctx, model, ids)
		return err
	})
	g.Go(func() error {
		if _, err := m.vectorClient.Delete(gctx, model, ids); err != nil {
			vectorErr = err
			log.Warn().Err(err).Str("model", model).Msg("data manager: vector delete failed alongside scalar soft-delete")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return RemoveStatus{}, fmt.Errorf("data manager: mark deleted: %w", err)
	}

	tier := m.tierFor(model)
	for _, id := range ids {
		tier.Remove(id)
	}
	return RemoveStatus{ScalarRemoved: n, VectorOK: vectorErr == nil, VectorErr: vectorErr}, nil
}

// TruncateModel hard-deletes every row for model across all three stores,
// reporting a vector-rebuild failure in the returned RemoveStatus instead
// of only logging it.
func (m *Manager) TruncateModel(ctx context.Context, model string) (RemoveStatus, error) {
	n, err := m.scalarStore.DeleteModel(ctx, model)
	if err != nil {
		return RemoveStatus{}, fmt.Errorf("data manager: delete model: %w", err)
	}
	var vectorErr error
	if err := m.vectorClient.RebuildCollection(ctx, model); err != nil {
		vectorErr = err
		log.Warn().Err(err).Str("model", model).Msg("data manager: vector rebuild failed after scalar truncate")
	}

	m.tiersMu.Lock()
	delete(m.tiers, model)
	m.tiersMu.Unlock()

	return RemoveStatus{ScalarRemoved: n, VectorOK: vectorErr == nil, VectorErr: vectorErr}, nil
}

// LogQuery appends an audit row; failures never propagate since the audit
// log must not affect a user-facing response.
func (m *Manager) LogQuery(ctx context.Context, entry models.QueryLogEntry) {
	if err := m.scalarStore.InsertQueryLog(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("data manager: query log insert failed")
	}
}
