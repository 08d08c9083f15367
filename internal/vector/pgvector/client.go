// Package pgvector provides a PostgreSQL+pgvector implementation of the
// per-model vector index contract (C2), storing every model's vectors in a
// single table partitioned by a model column - the pgvector analogue of a
// "collection per model" without provisioning a physical table per model.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	pgvec "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/semcache/internal/vector"
)

// row is the GORM model backing the shared vectors table.
type row struct {
	ID        string       `gorm:"primaryKey;column:id;size:128"`
	Model     string       `gorm:"primaryKey;column:model;size:128"`
	Embedding pgvec.Vector `gorm:"column:embedding"`
}

func (row) TableName() string { return "vectors" }

// Config configures a pgvector Client.
type Config struct {
	DB          *gorm.DB // required
	Dim         int      // required, vector dimension
	DefaultTopK int      // used when Search is called with topK<=0
	Metric      string   // "cosine" or "l2"
}

// Client implements vector.Client against PostgreSQL+pgvector.
type Client struct {
	db          *gorm.DB
	sqlDB       *sql.DB
	dim         int
	defaultTopK int
	metric      string
	createdMu   sync.Mutex
	created     map[string]bool
}

// NewClient opens a pgvector-backed vector index. It assumes migrations
// have already created the `vectors` table with a pgvector `embedding`
// column of the configured dimension.
func NewClient(cfg Config) (*Client, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("pgvector: DB is required")
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("pgvector: Dim must be positive")
	}
	sqlDB, err := cfg.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("pgvector: get sql.DB: %w", err)
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 10
	}
	metric := cfg.Metric
	if metric == "" {
		metric = "cosine"
	}
	return &Client{
		db:          cfg.DB,
		sqlDB:       sqlDB,
		dim:         cfg.Dim,
		defaultTopK: topK,
		metric:      metric,
		created:     make(map[string]bool),
	}, nil
}

// Create provisions bookkeeping for model; the shared table always exists,
// so this only tracks first-use for the CreateResult contract.
func (c *Client) Create(ctx context.Context, model string) (vector.CreateResult, error) {
	c.createdMu.Lock()
	defer c.createdMu.Unlock()
	if c.created[model] {
		return vector.CreateResultAlreadyExists, nil
	}

	var count int64
	if err := c.db.WithContext(ctx).Model(&row{}).Where("model = ?", model).Count(&count).Error; err != nil {
		return "", fmt.Errorf("pgvector: check existing model rows: %w", err)
	}
	c.created[model] = true
	if count > 0 {
		return vector.CreateResultAlreadyExists, nil
	}
	return vector.CreateResultCreated, nil
}

// MulAdd upserts a batch of records scoped to model.
func (c *Client) MulAdd(ctx context.Context, model string, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]row, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != c.dim {
			return fmt.Errorf("pgvector: dimension mismatch: got %d, want %d", len(r.Embedding), c.dim)
		}
		rows = append(rows, row{ID: r.ID, Model: model, Embedding: pgvec.NewVector(r.Embedding)})
	}

	c.createdMu.Lock()
	c.created[model] = true
	c.createdMu.Unlock()

	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "model"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding"}),
		}).
		Create(&rows).Error
}

// Search performs a similarity search scoped to model, ordered per the
// configured metric (ascending distance for L2, descending similarity for
// cosine), with ties broken by id ascending.
func (c *Client) Search(ctx context.Context, model string, query []float32, topK int) ([]vector.Hit, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("pgvector: dimension mismatch: got %d, want %d", len(query), c.dim)
	}
	if topK <= 0 {
		topK = c.defaultTopK
	}

	op := "<=>" // cosine distance
	if c.metric == "l2" {
		op = "<->"
	}

	sqlStr := fmt.Sprintf(`
		SELECT id, embedding %s $1 AS score
		FROM vectors
		WHERE model = $2
		ORDER BY score ASC, id ASC
		LIMIT $3`, op)

	rows, err := c.sqlDB.QueryContext(ctx, sqlStr, pgvec.NewVector(query), model, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var hits []vector.Hit
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan search row: %w", err)
		}
		if c.metric == "cosine" {
			// pgvector's <=> operator returns cosine *distance* (1 - similarity);
			// the engine's contract wants cosine similarity as the score.
			score = 1 - score
		}
		hits = append(hits, vector.Hit{ID: id, Score: score})
	}
	return hits, rows.Err()
}

// Delete removes ids from model's partition, returning the count removed.
func (c *Client) Delete(ctx context.Context, model string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := c.db.WithContext(ctx).Where("model = ? AND id IN ?", model, ids).Delete(&row{})
	if tx.Error != nil {
		return 0, fmt.Errorf("pgvector: delete: %w", tx.Error)
	}
	return int(tx.RowsAffected), nil
}

// RebuildCollection drops and recreates model's partition empty.
func (c *Client) RebuildCollection(ctx context.Context, model string) error {
	if err := c.db.WithContext(ctx).Where("model = ?", model).Delete(&row{}).Error; err != nil {
		return fmt.Errorf("pgvector: rebuild collection: %w", err)
	}
	c.createdMu.Lock()
	delete(c.created, model)
	c.createdMu.Unlock()
	log.Debug().Str("model", model).Msg("pgvector: collection rebuilt")
	return nil
}

// Flush is a no-op for pgvector: writes are visible as soon as the
// transaction committing them returns.
func (c *Client) Flush(ctx context.Context) error { return nil }

var _ vector.Client = (*Client)(nil)
