package datamanager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/pkg/models"
)

type fakeVectorClient struct {
	mu        sync.Mutex
	data      map[string]map[string][]float32 // model -> id -> embedding
	deleteErr error                            // when set, Delete fails without touching data
}

func newFakeVectorClient() *fakeVectorClient {
	return &fakeVectorClient{data: make(map[string]map[string][]float32)}
}

func (f *fakeVectorClient) Create(ctx context.Context, model string) (vector.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[model]; ok {
		return vector.CreateResultAlreadyExists, nil
	}
	f.data[model] = make(map[string][]float32)
	return vector.CreateResultCreated, nil
}

func (f *fakeVectorClient) MulAdd(ctx context.Context, model string, records []vector.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.data[model][r.ID] = r.Embedding
	}
	return nil
}

func (f *fakeVectorClient) Search(ctx context.Context, model string, query []float32, topK int) ([]vector.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []vector.Hit
	for id := range f.data[model] {
		hits = append(hits, vector.Hit{ID: id, Score: 0.99})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (f *fakeVectorClient) Delete(ctx context.Context, model string, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := 0
	for _, id := range ids {
		if _, ok := f.data[model][id]; ok {
			delete(f.data[model], id)
			n++
		}
	}
	return n, nil
}

func (f *fakeVectorClient) RebuildCollection(ctx context.Context, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[model] = make(map[string][]float32)
	return nil
}

func (f *fakeVectorClient) Flush(ctx context.Context) error { return nil }

type fakeScalarStore struct {
	mu   sync.Mutex
	rows map[string]map[string]models.CacheEntry // model -> id -> entry
	logs []models.QueryLogEntry
	seq  int
}

func newFakeScalarStore() *fakeScalarStore {
	return &fakeScalarStore{rows: make(map[string]map[string]models.CacheEntry)}
}

func (f *fakeScalarStore) BatchInsert(ctx context.Context, entries []models.CacheEntry) ([]models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CacheEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			f.seq++
			e.ID = "gen-" + string(rune('a'+f.seq))
		}
		if f.rows[e.Model] == nil {
			f.rows[e.Model] = make(map[string]models.CacheEntry)
		}
		f.rows[e.Model][e.ID] = e
		out[i] = e
	}
	return out, nil
}

func (f *fakeScalarStore) GetByID(ctx context.Context, model, id string) (*models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[model][id]
	if !ok || e.Deleted {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeScalarStore) GetByIDs(ctx context.Context, model string, ids []string) ([]models.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CacheEntry
	for _, id := range ids {
		if e, ok := f.rows[model][id]; ok && !e.Deleted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeScalarStore) IncrementHitCount(ctx context.Context, model, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rows[model][id]; ok {
		e.HitCount++
		f.rows[model][id] = e
	}
	return nil
}

func (f *fakeScalarStore) MarkDeleted(ctx context.Context, model string, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if e, ok := f.rows[model][id]; ok {
			e.Deleted = true
			f.rows[model][id] = e
			n++
		}
	}
	return n, nil
}

func (f *fakeScalarStore) DeleteModel(ctx context.Context, model string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.rows[model])
	delete(f.rows, model)
	return n, nil
}

func (f *fakeScalarStore) InsertQueryLog(ctx context.Context, entry models.QueryLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func newTestManager() (*Manager, *fakeVectorClient, *fakeScalarStore) {
	vc := newFakeVectorClient()
	ss := newFakeScalarStore()
	return New(vc, ss, EvictionARC, 100, 0.1, 0, false), vc, ss
}

func TestImportAndSearch(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	saved, err := m.Import(ctx, "gpt_4", []models.CacheEntry{
		{ID: "e1", Prompt: "hi", Answer: models.Answer{Type: models.AnswerTypeString, Text: "hello"}, Embedding: []float32{0.1, 0.2}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	hits, err := m.Search(ctx, "gpt_4", []float32{0.1, 0.2}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e1", hits[0].Entry.ID)
}

func TestImportNormalizesEmbeddingsToUnitNorm(t *testing.T) {
	vc, ss := newFakeVectorClient(), newFakeScalarStore()
	m := New(vc, ss, EvictionARC, 100, 0.1, 0, true)
	ctx := context.Background()

	saved, err := m.Import(ctx, "m1", []models.CacheEntry{
		{ID: "e1", Prompt: "hi", Embedding: []float32{3, 4}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	var sumSq float64
	for _, x := range saved[0].Embedding {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-5)

	stored := vc.data["m1"]["e1"]
	sumSq = 0
	for _, x := range stored {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-5)
}

func TestImportRejectsWrongDimension(t *testing.T) {
	m := New(newFakeVectorClient(), newFakeScalarStore(), EvictionARC, 100, 0.1, 3, false)
	ctx := context.Background()

	_, err := m.Import(ctx, "m1", []models.CacheEntry{
		{ID: "e1", Prompt: "hi", Embedding: []float32{0.1, 0.2}},
	})
	assert.Error(t, err)
}

func TestSearchFallsBackToScalarStoreOnTierMiss(t *testing.T) {
	m, vc, ss := newTestManager()
	ctx := context.Background()

	_, _ = vc.Create(ctx, "m1")
	_ = vc.MulAdd(ctx, "m1", []vector.Record{{ID: "e2", Embedding: []float32{0.5}}})
	_, _ = ss.BatchInsert(ctx, []models.CacheEntry{{ID: "e2", Model: "m1", Prompt: "p"}})

	hits, err := m.Search(ctx, "m1", []float32{0.5}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e2", hits[0].Entry.ID)
}

func TestDeleteByIDsRemovesFromAllStores(t *testing.T) {
	m, vc, ss := newTestManager()
	ctx := context.Background()

	_, err := m.Import(ctx, "m1", []models.CacheEntry{
		{ID: "e3", Prompt: "p", Embedding: []float32{0.3}},
	})
	require.NoError(t, err)

	status, err := m.DeleteByIDs(ctx, "m1", []string{"e3"})
	require.NoError(t, err)
	assert.Equal(t, 1, status.ScalarRemoved)
	assert.True(t, status.VectorOK)
	assert.False(t, status.Partial())

	e, err := ss.GetByID(ctx, "m1", "e3")
	require.NoError(t, err)
	assert.Nil(t, e)

	_, ok := vc.data["m1"]["e3"]
	assert.False(t, ok)
}

func TestTruncateModelClearsEverything(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Import(ctx, "m1", []models.CacheEntry{
		{ID: "e4", Prompt: "p", Embedding: []float32{0.4}},
	})
	require.NoError(t, err)

	status, err := m.TruncateModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ScalarRemoved)
	assert.True(t, status.VectorOK)

	hits, err := m.Search(ctx, "m1", []float32{0.4}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteByIDsReportsVectorFailureAsPartial(t *testing.T) {
	m, vc, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Import(ctx, "m1", []models.CacheEntry{
		{ID: "e5", Prompt: "p", Embedding: []float32{0.5}},
	})
	require.NoError(t, err)

	vc.deleteErr = errors.New("vector store unavailable")

	status, err := m.DeleteByIDs(ctx, "m1", []string{"e5"})
	require.NoError(t, err)
	assert.Equal(t, 1, status.ScalarRemoved, "the scalar store is still the source of truth and must reflect the delete")
	assert.False(t, status.VectorOK)
	assert.True(t, status.Partial())
	assert.Error(t, status.VectorErr)
}
