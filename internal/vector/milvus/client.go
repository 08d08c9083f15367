// Package milvus provides a Milvus-backed implementation of the per-model
// vector index contract (C2), used in place of pgvector when the deployment
// already runs a dedicated vector database.
package milvus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/thebtf/semcache/internal/vector"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
)

// Config configures a Milvus Client.
type Config struct {
	Address     string
	Dim         int
	DefaultTopK int
	Metric      string // "cosine" or "l2"
}

// Client implements vector.Client against a Milvus cluster, with one
// collection per model.
type Client struct {
	mc          *milvusclient.Client
	dim         int
	defaultTopK int
	metric      entity.MetricType
	mu          sync.Mutex
	loaded      map[string]bool
}

// NewClient dials a Milvus server at cfg.Address.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus: address is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("milvus: dim must be positive")
	}
	mc, err := milvusclient.New(ctx, &milvusclient.ClientConfig{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("milvus: connect: %w", err)
	}

	metric := entity.COSINE
	if cfg.Metric == "l2" {
		metric = entity.L2
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 10
	}

	return &Client{
		mc:          mc,
		dim:         cfg.Dim,
		defaultTopK: topK,
		metric:      metric,
		loaded:      make(map[string]bool),
	}, nil
}

func collectionName(model string) string {
	return "semcache_" + model
}

// Create provisions model's collection with an id/embedding schema and an
// HNSW index, then loads it for search.
func (c *Client) Create(ctx context.Context, model string) (vector.CreateResult, error) {
	name := collectionName(model)

	has, err := c.mc.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return "", fmt.Errorf("milvus: has collection: %w", err)
	}
	if has {
		if err := c.ensureLoaded(ctx, name); err != nil {
			return "", err
		}
		return vector.CreateResultAlreadyExists, nil
	}

	schema := entity.NewSchema().WithField(
		entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).WithMaxLength(128),
	).WithField(
		entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(c.dim)),
	)

	if err := c.mc.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return "", fmt.Errorf("milvus: create collection: %w", err)
	}

	idx := index.NewHNSWIndex(c.metric, 16, 200)
	if _, err := c.mc.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, fieldEmbedding, idx)); err != nil {
		return "", fmt.Errorf("milvus: create index: %w", err)
	}

	if err := c.ensureLoaded(ctx, name); err != nil {
		return "", err
	}
	return vector.CreateResultCreated, nil
}

func (c *Client) ensureLoaded(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded[name] {
		return nil
	}
	task, err := c.mc.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("milvus: load collection: %w", err)
	}
	if err := task.Wait(ctx); err != nil {
		return fmt.Errorf("milvus: wait load: %w", err)
	}
	c.loaded[name] = true
	return nil
}

// MulAdd inserts or upserts a batch of records into model's collection.
func (c *Client) MulAdd(ctx context.Context, model string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	vecs := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Embedding) != c.dim {
			return fmt.Errorf("milvus: dimension mismatch: got %d, want %d", len(r.Embedding), c.dim)
		}
		ids[i] = r.ID
		vecs[i] = r.Embedding
	}

	col := entity.NewColumnVarChar(fieldID, ids)
	vecCol := entity.NewColumnFloatVector(fieldEmbedding, c.dim, vecs)

	name := collectionName(model)
	_, err := c.mc.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(name, col, vecCol))
	if err != nil {
		return fmt.Errorf("milvus: upsert: %w", err)
	}
	return nil
}

// Search runs an ANN search scoped to model's collection, returning hits
// best score first (ascending distance for L2, descending similarity
// otherwise), with equal scores ordered by id ascending.
func (c *Client) Search(ctx context.Context, model string, query []float32, topK int) ([]vector.Hit, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("milvus: dimension mismatch: got %d, want %d", len(query), c.dim)
	}
	if topK <= 0 {
		topK = c.defaultTopK
	}

	name := collectionName(model)
	vecs := []entity.Vector{entity.FloatVector(query)}
	results, err := c.mc.Search(ctx, milvusclient.NewSearchOption(name, topK, vecs).
		WithANNSField(fieldEmbedding))
	if err != nil {
		return nil, fmt.Errorf("milvus: search: %w", err)
	}

	var hits []vector.Hit
	for _, res := range results {
		for i := 0; i < res.ResultCount; i++ {
			idCol, ok := res.IDs.(*entity.ColumnVarChar)
			if !ok {
				continue
			}
			id, err := idCol.ValueByIdx(i)
			if err != nil {
				continue
			}
			hits = append(hits, vector.Hit{ID: id, Score: float64(res.Scores[i])})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			if c.metric == entity.L2 {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// Delete removes the given ids from model's collection. It returns
// len(ids), the number of ids requested, not a count of entities Milvus
// confirms it removed.
func (c *Client) Delete(ctx context.Context, model string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	name := collectionName(model)
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf("%s in [%s]", fieldID, joinQuoted(quoted))
	_, err := c.mc.Delete(ctx, milvusclient.NewDeleteOption(name).WithExpr(expr))
	if err != nil {
		return 0, fmt.Errorf("milvus: delete: %w", err)
	}
	return len(ids), nil
}

// RebuildCollection drops and recreates model's collection empty.
func (c *Client) RebuildCollection(ctx context.Context, model string) error {
	name := collectionName(model)
	if err := c.mc.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("milvus: drop collection: %w", err)
	}
	c.mu.Lock()
	delete(c.loaded, name)
	c.mu.Unlock()
	_, err := c.Create(ctx, model)
	return err
}

// Flush forces buffered inserts into Milvus's segments so they become
// searchable.
func (c *Client) Flush(ctx context.Context) error {
	_, err := c.mc.Flush(ctx, milvusclient.NewFlushOption())
	if err != nil {
		return fmt.Errorf("milvus: flush: %w", err)
	}
	return nil
}

func joinQuoted(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

var _ vector.Client = (*Client)(nil)
