package adapter

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/internal/blacklist"
	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/datamanager"
	"github.com/thebtf/semcache/internal/db"
	"github.com/thebtf/semcache/internal/embedding"
	"github.com/thebtf/semcache/internal/preprocess"
	"github.com/thebtf/semcache/internal/similarity"
	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/pkg/models"
)

// stubBackend returns a constant embedding regardless of text, which is
// all the adapter-level tests need: they exercise routing, not embedding
// quality.
type stubBackend struct{ dim int }

func (s stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (s stubBackend) Dim() int     { return s.dim }
func (s stubBackend) Name() string { return "stub" }

// textBackend embeds each text to the vector its table gives it, falling
// back to {1, 0, 0}, for tests that need different prompts to land on
// different cache entries.
type textBackend struct{ vecs map[string][]float32 }

func (b textBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := b.vecs[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return []float32{1, 0, 0}, nil
}
func (b textBackend) Dim() int     { return 3 }
func (b textBackend) Name() string { return "text" }

type memVectorClient struct {
	mu        sync.Mutex
	data      map[string]map[string][]float32
	deleteErr error // when set, Delete fails without touching data
}

func newMemVectorClient() *memVectorClient {
	return &memVectorClient{data: make(map[string]map[string][]float32)}
}

func (c *memVectorClient) Create(ctx context.Context, model string) (vector.CreateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[model]; ok {
		return vector.CreateResultAlreadyExists, nil
	}
	c.data[model] = make(map[string][]float32)
	return vector.CreateResultCreated, nil
}

func (c *memVectorClient) MulAdd(ctx context.Context, model string, records []vector.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.data[model][r.ID] = r.Embedding
	}
	return nil
}

// Search scores every stored vector by its dot product with query.
func (c *memVectorClient) Search(ctx context.Context, model string, query []float32, topK int) ([]vector.Hit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits []vector.Hit
	for id, emb := range c.data[model] {
		var score float64
		for i := 0; i < len(query) && i < len(emb); i++ {
			score += float64(query[i]) * float64(emb[i])
		}
		hits = append(hits, vector.Hit{ID: id, Score: score})
	}
	return hits, nil
}

func (c *memVectorClient) Delete(ctx context.Context, model string, ids []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	n := 0
	for _, id := range ids {
		if _, ok := c.data[model][id]; ok {
			delete(c.data[model], id)
			n++
		}
	}
	return n, nil
}

func (c *memVectorClient) RebuildCollection(ctx context.Context, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[model] = make(map[string][]float32)
	return nil
}

func (c *memVectorClient) Flush(ctx context.Context) error { return nil }

type memScalarStore struct {
	mu   sync.Mutex
	rows map[string]map[string]models.CacheEntry
	seq  int
}

func newMemScalarStore() *memScalarStore {
	return &memScalarStore{rows: make(map[string]map[string]models.CacheEntry)}
}

func (s *memScalarStore) BatchInsert(ctx context.Context, entries []models.CacheEntry) ([]models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CacheEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			s.seq++
			e.ID = fmt.Sprintf("id-%d", s.seq)
		}
		if s.rows[e.Model] == nil {
			s.rows[e.Model] = make(map[string]models.CacheEntry)
		}
		s.rows[e.Model][e.ID] = e
		out[i] = e
	}
	return out, nil
}

func (s *memScalarStore) GetByID(ctx context.Context, model, id string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[model][id]
	if !ok || e.Deleted {
		return nil, nil
	}
	return &e, nil
}

func (s *memScalarStore) GetByIDs(ctx context.Context, model string, ids []string) ([]models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CacheEntry
	for _, id := range ids {
		if e, ok := s.rows[model][id]; ok && !e.Deleted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memScalarStore) IncrementHitCount(ctx context.Context, model, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.rows[model][id]; ok {
		e.HitCount++
		s.rows[model][id] = e
	}
	return nil
}

func (s *memScalarStore) MarkDeleted(ctx context.Context, model string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if e, ok := s.rows[model][id]; ok {
			e.Deleted = true
			s.rows[model][id] = e
			n++
		}
	}
	return n, nil
}

func (s *memScalarStore) DeleteModel(ctx context.Context, model string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.rows[model])
	delete(s.rows, model)
	return n, nil
}

func (s *memScalarStore) InsertQueryLog(ctx context.Context, entry models.QueryLogEntry) error {
	return nil
}

var _ db.ScalarStore = (*memScalarStore)(nil)
var _ vector.Client = (*memVectorClient)(nil)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dispatcher, err := embedding.NewDispatcher(stubBackend{dim: 3}, 2, 8)
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	cfg := config.Default()
	cfg.SimilarityThreshold = 0.5
	cfg.ThresholdLong = 0.5

	mgr := datamanager.New(newMemVectorClient(), newMemScalarStore(), datamanager.EvictionARC, 100, 0.1, 3, false)

	return New(Config{
		Dispatcher:  dispatcher,
		Evaluator:   similarity.New(cfg),
		Manager:     mgr,
		Blacklist:   blacklist.New([]string{"blocked-model"}),
		PreMode:     preprocess.ModeRoleLastContent,
		DefaultTopK: 5,
	})
}

func TestInsertThenQueryHits(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	ins := a.Insert(ctx, InsertRequest{
		Model:  "gpt-4",
		Prompt: models.Prompt{Text: "what is the capital of france"},
		Answer: models.Answer{Type: models.AnswerTypeString, Text: "paris"},
	})
	require.Equal(t, models.CodeSuccess, ins.ErrorCode)
	require.NotEmpty(t, ins.ID)

	q := a.Query(ctx, QueryRequest{
		Model:  "gpt-4",
		Prompt: models.Prompt{Text: "what is the capital of france"},
	})
	assert.Equal(t, models.CodeSuccess, q.ErrorCode)
	assert.True(t, q.CacheHit)
	assert.Equal(t, "paris", q.Answer)
}

func TestInsertBatchedChatInfo(t *testing.T) {
	ctx := context.Background()
	dispatcher, err := embedding.NewDispatcher(textBackend{vecs: map[string][]float32{
		"hello":   {1, 0, 0},
		"goodbye": {0, 1, 0},
	}}, 2, 8)
	require.NoError(t, err)
	defer dispatcher.Close()

	cfg := config.Default()
	cfg.SimilarityThreshold = 0.5
	cfg.ThresholdLong = 0.5

	a := New(Config{
		Dispatcher:  dispatcher,
		Evaluator:   similarity.New(cfg),
		Manager:     datamanager.New(newMemVectorClient(), newMemScalarStore(), datamanager.EvictionARC, 100, 0.1, 3, false),
		Blacklist:   blacklist.New(nil),
		PreMode:     preprocess.ModeRoleLastContent,
		DefaultTopK: 5,
	})

	ins := a.Insert(ctx, InsertRequest{
		Model: "m1",
		ChatInfo: []ChatInfo{
			{
				Query:  models.Prompt{Text: "hello"},
				Answer: models.Answer{Type: models.AnswerTypeString, Text: "hi"},
			},
			{
				Query:  models.Prompt{Text: "goodbye"},
				Answer: models.Answer{Type: models.AnswerTypeString, Text: "bye"},
			},
		},
	})
	require.Equal(t, models.CodeSuccess, ins.ErrorCode)
	require.Len(t, ins.IDs, 2)
	require.Equal(t, ins.IDs[0], ins.ID)

	q1 := a.Query(ctx, QueryRequest{Model: "m1", Prompt: models.Prompt{Text: "hello"}})
	assert.True(t, q1.CacheHit)
	assert.Equal(t, "hi", q1.Answer)

	q2 := a.Query(ctx, QueryRequest{Model: "m1", Prompt: models.Prompt{Text: "goodbye"}})
	assert.True(t, q2.CacheHit)
	assert.Equal(t, "bye", q2.Answer)
}

func TestQueryBlacklistedModelRejected(t *testing.T) {
	a := newTestAdapter(t)
	q := a.Query(context.Background(), QueryRequest{
		Model:  "blocked-model",
		Prompt: models.Prompt{Text: "anything"},
	})
	assert.Equal(t, models.CodeModelBlacklisted, q.ErrorCode)
	assert.False(t, q.CacheHit)
}

func TestInsertBlacklistedModelRejected(t *testing.T) {
	a := newTestAdapter(t)
	resp := a.Insert(context.Background(), InsertRequest{
		Model:  "blocked-model",
		Prompt: models.Prompt{Text: "anything"},
		Answer: models.Answer{Type: models.AnswerTypeString, Text: "x"},
	})
	assert.Equal(t, models.CodeInsertBlacklisted, resp.ErrorCode)
}

func TestRemoveByIDAfterInsert(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	ins := a.Insert(ctx, InsertRequest{
		Model:  "m1",
		Prompt: models.Prompt{Text: "hello"},
		Answer: models.Answer{Type: models.AnswerTypeString, Text: "world"},
	})
	require.Equal(t, models.CodeSuccess, ins.ErrorCode)

	rm := a.Remove(ctx, RemoveRequest{Model: "m1", Mode: RemoveModeID, IDs: []string{ins.ID}})
	assert.Equal(t, models.CodeSuccess, rm.ErrorCode)
	assert.Equal(t, 1, rm.Removed)
	assert.True(t, rm.VectorOK)

	q := a.Query(ctx, QueryRequest{Model: "m1", Prompt: models.Prompt{Text: "hello"}})
	assert.False(t, q.CacheHit)
}

func TestRemoveReportsPartialFailureWhenVectorDeleteFails(t *testing.T) {
	ctx := context.Background()
	dispatcher, err := embedding.NewDispatcher(stubBackend{dim: 3}, 2, 8)
	require.NoError(t, err)
	defer dispatcher.Close()

	cfg := config.Default()
	cfg.SimilarityThreshold = 0.5
	cfg.ThresholdLong = 0.5

	vc := newMemVectorClient()
	mgr := datamanager.New(vc, newMemScalarStore(), datamanager.EvictionARC, 100, 0.1, 3, false)
	a := New(Config{
		Dispatcher:  dispatcher,
		Evaluator:   similarity.New(cfg),
		Manager:     mgr,
		Blacklist:   blacklist.New(nil),
		PreMode:     preprocess.ModeRoleLastContent,
		DefaultTopK: 5,
	})

	ins := a.Insert(ctx, InsertRequest{
		Model:  "m1",
		Prompt: models.Prompt{Text: "hello"},
		Answer: models.Answer{Type: models.AnswerTypeString, Text: "world"},
	})
	require.Equal(t, models.CodeSuccess, ins.ErrorCode)

	vc.deleteErr = fmt.Errorf("vector store unreachable")

	rm := a.Remove(ctx, RemoveRequest{Model: "m1", Mode: RemoveModeID, IDs: []string{ins.ID}})
	assert.Equal(t, models.CodeSuccess, rm.ErrorCode, "the scalar store, the source of truth, still succeeded")
	assert.Equal(t, 1, rm.Removed)
	assert.False(t, rm.VectorOK, "a vector-delete failure must be visible to the caller, not silently swallowed")
	assert.NotEmpty(t, rm.ErrorDesc)
}

func TestRegisterCreatesCollection(t *testing.T) {
	a := newTestAdapter(t)
	resp := a.Register(context.Background(), RegisterRequest{Model: "fresh-model"})
	assert.Equal(t, models.CodeSuccess, resp.ErrorCode)
	assert.True(t, resp.Created)
}

// orderedVectorClient is like memVectorClient but returns Search hits in
// strict insertion order instead of Go's randomized map iteration order,
// so tests can pin down exactly what order the vector index "returns"
// candidates in.
type orderedVectorClient struct {
	mu    sync.Mutex
	order map[string][]string
	data  map[string]map[string][]float32
}

func newOrderedVectorClient() *orderedVectorClient {
	return &orderedVectorClient{order: make(map[string][]string), data: make(map[string]map[string][]float32)}
}

func (c *orderedVectorClient) Create(ctx context.Context, model string) (vector.CreateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[model]; ok {
		return vector.CreateResultAlreadyExists, nil
	}
	c.data[model] = make(map[string][]float32)
	return vector.CreateResultCreated, nil
}

func (c *orderedVectorClient) MulAdd(ctx context.Context, model string, records []vector.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		if _, ok := c.data[model][r.ID]; !ok {
			c.order[model] = append(c.order[model], r.ID)
		}
		c.data[model][r.ID] = r.Embedding
	}
	return nil
}

func (c *orderedVectorClient) Search(ctx context.Context, model string, query []float32, topK int) ([]vector.Hit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits []vector.Hit
	for _, id := range c.order[model] {
		hits = append(hits, vector.Hit{ID: id, Score: 0.99})
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (c *orderedVectorClient) Delete(ctx context.Context, model string, ids []string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	remove := make(map[string]bool, len(ids))
	n := 0
	for _, id := range ids {
		remove[id] = true
		if _, ok := c.data[model][id]; ok {
			delete(c.data[model], id)
			n++
		}
	}
	kept := c.order[model][:0]
	for _, id := range c.order[model] {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	c.order[model] = kept
	return n, nil
}

func (c *orderedVectorClient) RebuildCollection(ctx context.Context, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[model] = make(map[string][]float32)
	c.order[model] = nil
	return nil
}

func (c *orderedVectorClient) Flush(ctx context.Context) error { return nil }

var _ vector.Client = (*orderedVectorClient)(nil)

// fakeReranker returns a fixed score per candidate prompt, so a test can
// force a reranked order that disagrees with the vector index's order.
type fakeReranker struct {
	scores map[string]float64
}

func (f fakeReranker) Rerank(_ context.Context, _, candidate string) (float64, error) {
	if s, ok := f.scores[candidate]; ok {
		return s, nil
	}
	return 0, nil
}

var _ similarity.Reranker = fakeReranker{}

func TestQueryPicksBestRankedCandidateAfterReranking(t *testing.T) {
	ctx := context.Background()
	dispatcher, err := embedding.NewDispatcher(stubBackend{dim: 3}, 2, 8)
	require.NoError(t, err)
	defer dispatcher.Close()

	cfg := config.Default()
	cfg.SimilarityThreshold = 0.5
	cfg.ThresholdLong = 0.5

	vc := newOrderedVectorClient()
	mgr := datamanager.New(vc, newMemScalarStore(), datamanager.EvictionARC, 100, 0.1, 3, false)

	// "first candidate" is indexed before "second candidate", so the
	// vector index returns it first - but the reranker below ranks the
	// second candidate higher. The adapter must still pick the second.
	_, err = mgr.Import(ctx, "m1", []models.CacheEntry{
		{Prompt: "first candidate", Answer: models.Answer{Type: models.AnswerTypeString, Text: "first-answer"}, Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	_, err = mgr.Import(ctx, "m1", []models.CacheEntry{
		{Prompt: "second candidate", Answer: models.Answer{Type: models.AnswerTypeString, Text: "second-answer"}, Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)

	reranker := fakeReranker{scores: map[string]float64{
		"first candidate":  0.6,
		"second candidate": 0.95,
	}}

	a := New(Config{
		Dispatcher:  dispatcher,
		Evaluator:   similarity.New(cfg),
		Reranker:    reranker,
		Manager:     mgr,
		Blacklist:   blacklist.New(nil),
		PreMode:     preprocess.ModeRoleLastContent,
		DefaultTopK: 5,
	})

	q := a.Query(ctx, QueryRequest{Model: "m1", Prompt: models.Prompt{Text: "query"}})
	assert.True(t, q.CacheHit)
	assert.Equal(t, "second-answer", q.Answer,
		"the higher-ranked reranked candidate must win even though the lower-ranked one was returned first by the vector index")
}
