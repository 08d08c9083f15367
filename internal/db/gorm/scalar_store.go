package gorm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/semcache/internal/db"
	"github.com/thebtf/semcache/pkg/models"
)

// ScalarStore implements db.ScalarStore against the cache_entries and
// query_log tables through the shared connection pool in Store.
type ScalarStore struct {
	store *Store
}

// NewScalarStore wraps an already-opened Store.
func NewScalarStore(store *Store) *ScalarStore {
	return &ScalarStore{store: store}
}

func toRow(e models.CacheEntry) CacheEntryRow {
	return CacheEntryRow{
		ID:             e.ID,
		Model:          e.Model,
		Prompt:         e.Prompt,
		AnswerType:     string(e.Answer.Type),
		AnswerText:     e.Answer.Text,
		AnswerBlob:     e.Answer.Handle,
		EmbeddingBytes: models.EmbeddingToBytes(e.Embedding),
		HitCount:       e.HitCount,
		Deleted:        e.Deleted,
	}
}

func fromRow(r CacheEntryRow) models.CacheEntry {
	return models.CacheEntry{
		ID:     r.ID,
		Model:  r.Model,
		Prompt: r.Prompt,
		Answer: models.Answer{
			Type:   models.AnswerType(r.AnswerType),
			Text:   r.AnswerText,
			Handle: r.AnswerBlob,
		},
		Embedding: models.BytesToEmbedding(r.EmbeddingBytes),
		HitCount:  r.HitCount,
		Deleted:   r.Deleted,
	}
}

// BatchInsert assigns a uuid to every entry missing one, then inserts the
// batch in a single statement.
func (s *ScalarStore) BatchInsert(ctx context.Context, entries []models.CacheEntry) ([]models.CacheEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	rows := make([]CacheEntryRow, 0, len(entries))
	out := make([]models.CacheEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		out[i] = e
		rows = append(rows, toRow(e))
	}

	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "batch_insert")
	defer cancel()

	if err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"prompt", "answer_type", "answer_text", "answer_blob", "embedding_bytes", "deleted"}),
	}).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("scalar store: batch insert: %w", err)
	}
	return out, nil
}

// GetByID returns the entry for id, or nil if missing or soft-deleted.
func (s *ScalarStore) GetByID(ctx context.Context, model, id string) (*models.CacheEntry, error) {
	ctx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "get_by_id")
	defer cancel()

	var row CacheEntryRow
	err := s.store.DB.WithContext(ctx).
		Where("id = ? AND model = ? AND deleted = ?", id, model, false).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scalar store: get by id: %w", err)
	}
	e := fromRow(row)
	return &e, nil
}

// GetByIDs batches GetByID.
func (s *ScalarStore) GetByIDs(ctx context.Context, model string, ids []string) ([]models.CacheEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "get_by_ids")
	defer cancel()

	var rows []CacheEntryRow
	if err := s.store.DB.WithContext(ctx).
		Where("id IN ? AND model = ? AND deleted = ?", ids, model, false).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scalar store: get by ids: %w", err)
	}
	out := make([]models.CacheEntry, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

// IncrementHitCount bumps an entry's hit counter by one.
func (s *ScalarStore) IncrementHitCount(ctx context.Context, model, id string) error {
	ctx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "increment_hit_count")
	defer cancel()

	err := s.store.DB.WithContext(ctx).Model(&CacheEntryRow{}).
		Where("id = ? AND model = ?", id, model).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error
	if err != nil {
		return fmt.Errorf("scalar store: increment hit count: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes the given ids scoped to model.
func (s *ScalarStore) MarkDeleted(ctx context.Context, model string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := s.store.WithTimeout(ctx, DefaultQueryTimeout, "mark_deleted")
	defer cancel()

	tx := s.store.DB.WithContext(ctx).Model(&CacheEntryRow{}).
		Where("id IN ? AND model = ?", ids, model).
		Update("deleted", true)
	if tx.Error != nil {
		return 0, fmt.Errorf("scalar store: mark deleted: %w", tx.Error)
	}
	return int(tx.RowsAffected), nil
}

// DeleteModel hard-truncates every row for model.
func (s *ScalarStore) DeleteModel(ctx context.Context, model string) (int, error) {
	ctx, cancel := s.store.WithTimeout(ctx, SlowQueryTimeout, "delete_model")
	defer cancel()

	tx := s.store.DB.WithContext(ctx).Where("model = ?", model).Delete(&CacheEntryRow{})
	if tx.Error != nil {
		return 0, fmt.Errorf("scalar store: delete model: %w", tx.Error)
	}
	return int(tx.RowsAffected), nil
}

// InsertQueryLog appends one audit row; failures are logged, not returned,
// since the audit log must never fail a user-facing request.
func (s *ScalarStore) InsertQueryLog(ctx context.Context, entry models.QueryLogEntry) error {
	ctx, cancel := s.store.WithTimeout(ctx, FastQueryTimeout, "insert_query_log")
	defer cancel()

	row := QueryLogRow{
		ErrorCode: entry.ErrorCode,
		ErrorDesc: entry.ErrorDesc,
		CacheHit:  entry.CacheHit,
		Model:     entry.Model,
		Query:     entry.Query,
		DeltaTime: entry.DeltaTime,
		HitQuery:  entry.HitQuery,
		Answer:    entry.Answer,
	}
	if err := s.store.DB.WithContext(ctx).Create(&row).Error; err != nil {
		log.Warn().Err(err).Str("model", entry.Model).Msg("scalar store: query log insert failed")
	}
	return nil
}

var _ db.ScalarStore = (*ScalarStore)(nil)
