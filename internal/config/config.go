// Package config provides configuration loading for the semantic cache
// engine: storage DSNs, embedding/worker settings, similarity thresholds,
// and the eviction policy, all fixed at process start per the engine's
// single-writer design.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Metric selects the similarity metric the vector index and evaluator agree on.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// EvictionPolicy selects the in-memory tier's eviction algorithm.
type EvictionPolicy string

const (
	EvictionARC      EvictionPolicy = "arc"
	EvictionWTinyLFU EvictionPolicy = "wtinylfu"
)

// VectorBackend names a pluggable C2 implementation, resolved by the
// registry in internal/vector rather than compiled in unconditionally -
// the Go analogue of the source's lazy-import-by-name pattern.
type VectorBackend string

const (
	VectorBackendPgvector VectorBackend = "pgvector"
	VectorBackendMilvus   VectorBackend = "milvus"
)

// EmbeddingBackend names a pluggable C1 embed(text) implementation.
type EmbeddingBackend string

const (
	EmbeddingBackendOpenAI EmbeddingBackend = "openai"
	EmbeddingBackendLocal  EmbeddingBackend = "local"
)

// Config holds the full set of process-start settings for a CacheEngine.
type Config struct {
	// Storage.
	PostgresDSN   string        `json:"postgres_dsn"`
	MaxConns      int           `json:"max_conns"`
	VectorBackend VectorBackend `json:"vector_backend"`
	MilvusAddr    string        `json:"milvus_addr"`

	// Object store (optional; only consulted for non-string answers).
	ObjectStoreEnabled bool   `json:"object_store_enabled"`
	S3Bucket           string `json:"s3_bucket"`
	S3Region           string `json:"s3_region"`
	S3Endpoint         string `json:"s3_endpoint"`

	// Embedding dispatcher (C1).
	EmbeddingBackend EmbeddingBackend `json:"embedding_backend"`
	EmbeddingModel   string           `json:"embedding_model"`
	EmbeddingDim     int              `json:"embedding_dim"`
	WorkerCount      int              `json:"worker_count"`
	QueueCapacity    int              `json:"queue_capacity"`
	OpenAIAPIKey     string           `json:"openai_api_key"`

	// Similarity (C7).
	Metric              Metric  `json:"metric"`
	Normalize           bool    `json:"normalize"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ThresholdLong       float64 `json:"threshold_long"`
	MaxDistance         float64 `json:"max_distance"`
	LongPromptBoundary  int     `json:"long_prompt_boundary"`
	RerankerEnabled     bool    `json:"reranker_enabled"`
	RerankerModel       string  `json:"reranker_model"`

	// Pre-processor selection (C8).
	QueryPreprocessor string `json:"query_preprocessor"` // last_content | role_last_content | multi_splicing

	// Memory tier (C5).
	EvictionPolicy EvictionPolicy `json:"eviction_policy"`
	TierCapacity   int            `json:"tier_capacity"`
	WindowPct      float64        `json:"window_pct"` // W-TinyLFU only

	// Request model-scope blacklist.
	ModelBlacklist []string `json:"model_blacklist"`

	// Transport.
	ListenPort int `json:"listen_port"`

	// Observability.
	MetricsInterval time.Duration `json:"metrics_interval"`
}

// DefaultListenPort matches the source system's default modelcache port.
const DefaultListenPort = 5000

// DefaultLongPromptBoundary is the fixed prompt-length cutoff (in code
// points) separating the short and long similarity thresholds.
const DefaultLongPromptBoundary = 256

// Default returns a Config with the engine's documented defaults.
func Default() *Config {
	return &Config{
		MaxConns:            10,
		VectorBackend:       VectorBackendPgvector,
		EmbeddingBackend:    EmbeddingBackendLocal,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDim:        384,
		WorkerCount:         4,
		QueueCapacity:       256,
		Metric:              MetricCosine,
		Normalize:           true,
		SimilarityThreshold: 0.9,
		ThresholdLong:       0.9,
		MaxDistance:         4.0,
		LongPromptBoundary:  DefaultLongPromptBoundary,
		RerankerEnabled:     false,
		RerankerModel:       "gpt-4o-mini",
		QueryPreprocessor:   "role_last_content",
		EvictionPolicy:      EvictionARC,
		TierCapacity:        1000,
		WindowPct:           0.01,
		ListenPort:          DefaultListenPort,
		MetricsInterval:     30 * time.Second,
	}
}

// Validate rejects configuration combinations the engine cannot serve
// safely: a threshold outside [0,1], a non-positive dimension, worker count
// or tier capacity, an unknown metric or eviction policy, or the reranker
// enabled without an OpenAI key. The errors it returns are plain errors.
func (c *Config) Validate() error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %f", c.SimilarityThreshold)
	}
	if c.ThresholdLong < 0 || c.ThresholdLong > 1 {
		return fmt.Errorf("threshold_long must be in [0,1], got %f", c.ThresholdLong)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be positive, got %d", c.WorkerCount)
	}
	if c.TierCapacity <= 0 {
		return fmt.Errorf("tier_capacity must be positive, got %d", c.TierCapacity)
	}
	switch c.Metric {
	case MetricCosine, MetricL2:
	default:
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	switch c.EvictionPolicy {
	case EvictionARC, EvictionWTinyLFU:
	default:
		return fmt.Errorf("unknown eviction policy %q", c.EvictionPolicy)
	}
	if c.RerankerEnabled && c.OpenAIAPIKey == "" {
		return fmt.Errorf("reranker_enabled requires openai_api_key")
	}
	return nil
}

// Load reads a JSON config file on top of Default(), then applies env var
// overrides for the handful of settings operators most commonly tune
// without redeploying.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEMCACHE_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("SEMCACHE_MILVUS_ADDR"); v != "" {
		cfg.MilvusAddr = v
	}
	if v := os.Getenv("SEMCACHE_OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("SEMCACHE_MODEL_BLACKLIST"); v != "" {
		cfg.ModelBlacklist = splitTrim(v)
	}
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watcher reloads the similarity thresholds and model blacklist from a
// config file whenever it changes on disk, into the Config it was seeded
// with and the value Current returns, without restarting the worker pool or
// re-opening store connections. Storage/embedding settings stay fixed for
// the life of the process. The engine's evaluator and blacklist copy their
// values when they are built, so a reload does not change the thresholds or
// blacklist a running engine applies.
type Watcher struct {
	path string
	mu   sync.RWMutex
	cur  *Config
	fw   *fsnotify.Watcher
}

// NewWatcher starts watching path for changes, seeding the current value
// from an already-loaded Config.
func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if path != "" {
		if err := fw.Add(path); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}

	w := &Watcher{path: path, cur: initial, fw: fw}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := Load(w.path)
			if err != nil {
				log.Warn().Err(err).Str("path", w.path).Msg("config: reload failed, keeping previous value")
				continue
			}
			w.mu.Lock()
			w.cur.SimilarityThreshold = reloaded.SimilarityThreshold
			w.cur.ThresholdLong = reloaded.ThresholdLong
			w.cur.ModelBlacklist = reloaded.ModelBlacklist
			w.mu.Unlock()
			log.Info().Str("path", w.path).Msg("config: reloaded thresholds and blacklist")
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config: watcher error")
		}
	}
}

// Current returns a snapshot of the hot-reloadable fields.
func (w *Watcher) Current() (threshold, thresholdLong float64, blacklist []string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur.SimilarityThreshold, w.cur.ThresholdLong, append([]string(nil), w.cur.ModelBlacklist...)
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fw.Close() }
