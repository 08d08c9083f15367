// Package adapter implements the request/response state machines (C9):
// the only layer that talks in terms of the wire envelope, translating
// each operation into calls against the embedding dispatcher, similarity
// evaluator, pre/post processors, and data manager.
package adapter

import "github.com/thebtf/semcache/pkg/models"

// QueryRequest asks whether model has a cached answer for Prompt.
type QueryRequest struct {
	Model  string       `json:"model"`
	Prompt models.Prompt `json:"prompt"`
	TopK   int          `json:"top_k,omitempty"`
}

// QueryResponse is the response envelope for a query.
type QueryResponse struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	ErrorDesc string           `json:"error_desc,omitempty"`
	CacheHit  bool             `json:"cache_hit"`
	Answer    string           `json:"answer,omitempty"`
	HitQuery  string           `json:"hit_query,omitempty"`
	Score     float64          `json:"score,omitempty"`
}

// ChatInfo is one prompt/answer pair to insert, matching the wire envelope's
// chat_info array entries.
type ChatInfo struct {
	Query  models.Prompt `json:"query"`
	Answer models.Answer `json:"answer"`
}

// InsertRequest stores one or more prompt/answer pairs under model in a
// single batch: all pairs are pre-processed and embedded together before
// any of them are persisted. ChatInfo is the batched form; Prompt/Answer
// remain as a convenience for the single-pair case and are folded into
// ChatInfo when it is empty.
type InsertRequest struct {
	Model    string         `json:"model"`
	ChatInfo []ChatInfo     `json:"chat_info,omitempty"`
	Prompt   models.Prompt  `json:"prompt,omitempty"`
	Answer   models.Answer  `json:"answer,omitempty"`
}

// InsertResponse is the response envelope for an insert.
type InsertResponse struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	ErrorDesc string           `json:"error_desc,omitempty"`
	ID        string           `json:"id,omitempty"`
	IDs       []string         `json:"ids,omitempty"`
}

// Pairs returns req's prompt/answer pairs as a single slice, folding the
// legacy single-pair Prompt/Answer fields in when ChatInfo is unset.
func (req InsertRequest) Pairs() []ChatInfo {
	if len(req.ChatInfo) > 0 {
		return req.ChatInfo
	}
	if !req.Prompt.IsStructured() && req.Prompt.Text == "" {
		return nil
	}
	return []ChatInfo{{Query: req.Prompt, Answer: req.Answer}}
}

// RemoveMode selects how Remove interprets RemoveRequest.IDs/Model.
type RemoveMode string

const (
	// RemoveModeID deletes the specific ids listed, soft-delete semantics.
	RemoveModeID RemoveMode = "id"
	// RemoveModeTruncate hard-deletes every row for Model, ignoring IDs.
	RemoveModeTruncate RemoveMode = "truncate_by_model"
)

// RemoveRequest deletes entries from model.
type RemoveRequest struct {
	Model string     `json:"model"`
	Mode  RemoveMode `json:"mode"`
	IDs   []string   `json:"ids,omitempty"`
}

// RemoveResponse is the response envelope for a remove. VectorOK is false
// when the scalar store succeeded but the vector index did not, so a
// caller can tell a full success apart from a partial one instead of only
// seeing a row count.
type RemoveResponse struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	ErrorDesc string           `json:"error_desc,omitempty"`
	Removed   int              `json:"removed"`
	VectorOK  bool             `json:"vector_ok"`
}

// RegisterRequest provisions model's vector collection ahead of its first
// insert, so a cold first request doesn't pay collection-creation latency.
type RegisterRequest struct {
	Model string `json:"model"`
}

// RegisterResponse is the response envelope for a register.
type RegisterResponse struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	ErrorDesc string           `json:"error_desc,omitempty"`
	Created   bool             `json:"created"`
}
