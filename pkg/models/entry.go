// Package models defines the core data types shared across the semantic
// cache engine: cache entries, prompts, query-log rows, and vector records.
package models

import (
	"encoding/binary"
	"math"
	"strings"
)

// Message is one turn of a structured conversation prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a plain string or a structured conversation. Exactly one
// of Text or Messages is populated.
type Prompt struct {
	Text     string    `json:"text,omitempty"`
	Messages []Message `json:"messages,omitempty"`
}

// IsStructured reports whether the prompt carries a conversation instead of
// a bare string.
func (p Prompt) IsStructured() bool {
	return len(p.Messages) > 0
}

// AnswerType tags how Answer should be interpreted.
type AnswerType string

const (
	// AnswerTypeString means Answer.Text holds the literal answer.
	AnswerTypeString AnswerType = "string"
	// AnswerTypeObject means Answer.Handle references a blob in the object store.
	AnswerTypeObject AnswerType = "object"
)

// Answer is the stored response for a CacheEntry: either inline text or an
// opaque handle into the object store.
type Answer struct {
	Type   AnswerType `json:"type"`
	Text   string     `json:"text,omitempty"`
	Handle string     `json:"handle,omitempty"`
}

// CacheEntry is the authoritative record for one cached prompt/answer pair.
// Id is assigned by the scalar store and echoed, unchanged, into the vector
// index and the in-memory tier.
type CacheEntry struct {
	ID        string   `json:"id"`
	Prompt    string   `json:"prompt"`
	Answer    Answer   `json:"answer"`
	Model     string   `json:"model"`
	Embedding []float32 `json:"embedding,omitempty"`
	HitCount  int64    `json:"hit_count"`
	Deleted   bool     `json:"deleted"`
}

// QueryLogEntry is one append-only row of the query audit log. It is never
// read by the core request path; it exists purely for offline inspection.
type QueryLogEntry struct {
	ErrorCode int64   `json:"error_code"`
	ErrorDesc string  `json:"error_desc"`
	CacheHit  bool    `json:"cache_hit"`
	Model     string  `json:"model"`
	Query     string  `json:"query"`
	DeltaTime float64 `json:"delta_time"`
	HitQuery  string  `json:"hit_query"`
	Answer    string  `json:"answer"`
}

// VectorRecord is the minimal payload replicated into the per-model vector
// index: an id and its (possibly normalised) embedding.
type VectorRecord struct {
	ID        string
	Embedding []float32
}

// NormalizeModel applies the fixed, idempotent model-name normalisation rule
// used at every request ingress: '-' and '.' both collapse to '_'.
func NormalizeModel(model string) string {
	model = strings.ReplaceAll(model, "-", "_")
	model = strings.ReplaceAll(model, ".", "_")
	return model
}

// SerializedLen returns the code-point length of a pre-processed prompt,
// used to choose between the short and long similarity thresholds.
func SerializedLen(s string) int {
	return len([]rune(s))
}

// EmbeddingToBytes packs v into the scalar store's embedding_bytes column
// layout: a raw little-endian float32 buffer, length 4*len(v).
func EmbeddingToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToEmbedding unpacks a little-endian float32 buffer produced by
// EmbeddingToBytes. It returns nil if b's length is not a multiple of 4.
func BytesToEmbedding(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
