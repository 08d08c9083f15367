// Package engine wires the full request pipeline (C1-C9) into one
// explicit CacheEngine value. There is no package-level singleton: main
// constructs one CacheEngine and passes it to the transport layer.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/semcache/internal/adapter"
	"github.com/thebtf/semcache/internal/blacklist"
	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/datamanager"
	gormstore "github.com/thebtf/semcache/internal/db/gorm"
	"github.com/thebtf/semcache/internal/embedding"
	"github.com/thebtf/semcache/internal/objectstore"
	"github.com/thebtf/semcache/internal/preprocess"
	"github.com/thebtf/semcache/internal/similarity"
	"github.com/thebtf/semcache/internal/telemetry"
	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/internal/vector/milvus"
	"github.com/thebtf/semcache/internal/vector/pgvector"
)

// CacheEngine is the fully-wired semantic cache: a scalar store, a vector
// index, an embedding dispatcher, and the adapter tying them to the
// transport layer.
type CacheEngine struct {
	Config  *config.Config
	Store   *gormstore.Store
	Adapter *adapter.Adapter
	Metrics *telemetry.Metrics

	dispatcher *embedding.Dispatcher
}

// New constructs a CacheEngine from cfg, opening the scalar store and
// vector backend it names and building every layer in between.
func New(ctx context.Context, cfg *config.Config) (*CacheEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	store, err := gormstore.NewStore(gormstore.Config{
		DSN:          cfg.PostgresDSN,
		MaxConns:     cfg.MaxConns,
		LogLevel:     logger.Warn,
		EmbeddingDim: cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	vc, err := buildVectorClient(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	backend, err := buildEmbeddingBackend(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	dispatcher, err := embedding.NewDispatcher(backend, cfg.WorkerCount, cfg.QueueCapacity)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("engine: build dispatcher: %w", err)
	}

	var objStore objectstore.Store
	if cfg.ObjectStoreEnabled {
		objStore, err = objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			dispatcher.Close()
			_ = store.Close()
			return nil, fmt.Errorf("engine: build object store: %w", err)
		}
	}

	scalarStore := gormstore.NewScalarStore(store)
	policy := datamanager.EvictionARC
	if cfg.EvictionPolicy == config.EvictionWTinyLFU {
		policy = datamanager.EvictionWTinyLFU
	}
	manager := datamanager.New(vc, scalarStore, policy, cfg.TierCapacity, cfg.WindowPct, cfg.EmbeddingDim, cfg.Normalize)

	var reranker similarity.Reranker
	if cfg.RerankerEnabled {
		reranker, err = similarity.NewCrossEncoderReranker(cfg.OpenAIAPIKey, cfg.RerankerModel)
		if err != nil {
			dispatcher.Close()
			_ = store.Close()
			return nil, fmt.Errorf("engine: build reranker: %w", err)
		}
	}

	a := adapter.New(adapter.Config{
		Dispatcher:  dispatcher,
		Evaluator:   similarity.New(cfg),
		Reranker:    reranker,
		Manager:     manager,
		Blacklist:   blacklist.New(cfg.ModelBlacklist),
		ObjectStore: objStore,
		PreMode:     preprocess.Mode(cfg.QueryPreprocessor),
		DefaultTopK: vector.DefaultTopK,
	})

	metrics, err := telemetry.New(ctx, cfg.MetricsInterval)
	if err != nil {
		dispatcher.Close()
		_ = store.Close()
		return nil, fmt.Errorf("engine: build telemetry: %w", err)
	}

	log.Info().
		Str("vector_backend", string(cfg.VectorBackend)).
		Str("embedding_backend", string(cfg.EmbeddingBackend)).
		Str("eviction_policy", string(cfg.EvictionPolicy)).
		Int("listen_port", cfg.ListenPort).
		Msg("engine: initialized")

	return &CacheEngine{Config: cfg, Store: store, Adapter: a, Metrics: metrics, dispatcher: dispatcher}, nil
}

func buildVectorClient(ctx context.Context, cfg *config.Config, store *gormstore.Store) (vector.Client, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendMilvus:
		c, err := milvus.NewClient(ctx, milvus.Config{
			Address:     cfg.MilvusAddr,
			Dim:         cfg.EmbeddingDim,
			DefaultTopK: vector.DefaultTopK,
			Metric:      string(cfg.Metric),
		})
		if err != nil {
			return nil, fmt.Errorf("engine: build milvus client: %w", err)
		}
		return c, nil
	default:
		c, err := pgvector.NewClient(pgvector.Config{
			DB:     store.GetDB(),
			Dim:    cfg.EmbeddingDim,
			Metric: string(cfg.Metric),
		})
		if err != nil {
			return nil, fmt.Errorf("engine: build pgvector client: %w", err)
		}
		return c, nil
	}
}

func buildEmbeddingBackend(cfg *config.Config) (embedding.Backend, error) {
	switch cfg.EmbeddingBackend {
	case config.EmbeddingBackendOpenAI:
		return embedding.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	default:
		return embedding.NewLocalBackend("", cfg.EmbeddingDim)
	}
}

// Close releases the worker pool, metrics provider, and database connection.
func (e *CacheEngine) Close() error {
	e.dispatcher.Close()
	_ = e.Metrics.Shutdown(context.Background())
	return e.Store.Close()
}
