package gorm

import "time"

// CacheEntryRow is the GORM model backing cache_entries: the authoritative
// record the data manager hydrates into a models.CacheEntry.
type CacheEntryRow struct {
	ID         string `gorm:"primaryKey;column:id;size:64"`
	Model      string `gorm:"column:model;size:128;index:idx_cache_entries_model"`
	Prompt     string `gorm:"column:prompt;type:text"`
	AnswerType string `gorm:"column:answer_type;size:16"`
	AnswerText string `gorm:"column:answer_text;type:text"`
	AnswerBlob string `gorm:"column:answer_blob;size:256"` // object store handle, when AnswerType=object
	// EmbeddingBytes is the raw little-endian float32 buffer the prompt was
	// embedded to, duplicated here (alongside the vectors table the vector
	// index backend reads) so the scalar store alone can satisfy
	// get_data_by_id without a round trip to the vector backend.
	EmbeddingBytes []byte `gorm:"column:embedding_bytes;type:bytea"`
	HitCount       int64  `gorm:"column:hit_count;default:0"`
	Deleted    bool   `gorm:"column:deleted;default:false;index:idx_cache_entries_deleted"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CacheEntryRow) TableName() string { return "cache_entries" }

// QueryLogRow is the GORM model backing query_log, the append-only audit
// trail written by insert_query_resp. It is never consulted on the hot path.
type QueryLogRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	ErrorCode int64  `gorm:"column:error_code"`
	ErrorDesc string `gorm:"column:error_desc;type:text"`
	CacheHit  bool   `gorm:"column:cache_hit"`
	Model     string `gorm:"column:model;size:128;index:idx_query_log_model"`
	Query     string `gorm:"column:query;type:text"`
	DeltaTime float64 `gorm:"column:delta_time"`
	HitQuery  string `gorm:"column:hit_query;type:text"`
	Answer    string `gorm:"column:answer;type:text"`
	CreatedAt time.Time
}

func (QueryLogRow) TableName() string { return "query_log" }
