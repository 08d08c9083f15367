package gorm

import (
	"database/sql"
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// runMigrations applies the scalar store's schema in order, enabling the
// pgvector extension and sizing the vectors table's embedding column to
// embeddingDim before any other migration depends on it.
func runMigrations(db *gorm.DB, sqlDB *sql.DB, embeddingDim int) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202601010001_enable_pgvector",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return nil // never drop a shared extension on rollback
			},
		},
		{
			ID: "202601010002_create_cache_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&CacheEntryRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&CacheEntryRow{})
			},
		},
		{
			ID: "202601010003_create_query_log",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&QueryLogRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&QueryLogRow{})
			},
		},
		{
			ID: "202601010004_create_vectors",
			Migrate: func(tx *gorm.DB) error {
				stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vectors (
					id    varchar(128) NOT NULL,
					model varchar(128) NOT NULL,
					embedding vector(%d) NOT NULL,
					PRIMARY KEY (id, model)
				)`, embeddingDim)
				return tx.Exec(stmt).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP TABLE IF EXISTS vectors").Error
			},
		},
		{
			ID: "202601010005_vectors_ivfflat_index",
			Migrate: func(tx *gorm.DB) error {
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_vectors_embedding_cosine
					ON vectors USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_vectors_embedding_cosine").Error
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("gormigrate: %w", err)
	}
	log.Info().Int("embedding_dim", embeddingDim).Msg("db: migrations applied")
	return nil
}
