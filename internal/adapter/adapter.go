package adapter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/blacklist"
	"github.com/thebtf/semcache/internal/datamanager"
	"github.com/thebtf/semcache/internal/embedding"
	"github.com/thebtf/semcache/internal/objectstore"
	"github.com/thebtf/semcache/internal/preprocess"
	"github.com/thebtf/semcache/internal/similarity"
	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/pkg/models"
)

// Adapter is the single entry point for every request the transport layer
// accepts: it normalizes the model name, checks the blacklist, then drives
// the pre-processor, embedding dispatcher, similarity evaluator, and data
// manager in the right order for each operation.
type Adapter struct {
	dispatcher  *embedding.Dispatcher
	evaluator   *similarity.Evaluator
	reranker    similarity.Reranker
	manager     *datamanager.Manager
	blacklist   *blacklist.List
	objectStore objectstore.Store // nil when not configured
	preMode     preprocess.Mode
	defaultTopK int
}

// Config bundles everything Adapter needs at construction.
type Config struct {
	Dispatcher  *embedding.Dispatcher
	Evaluator   *similarity.Evaluator
	Reranker    similarity.Reranker
	Manager     *datamanager.Manager
	Blacklist   *blacklist.List
	ObjectStore objectstore.Store
	PreMode     preprocess.Mode
	DefaultTopK int
}

// New builds an Adapter from cfg.
func New(cfg Config) *Adapter {
	reranker := cfg.Reranker
	if reranker == nil {
		reranker = similarity.NoopReranker{}
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = 10
	}
	return &Adapter{
		dispatcher:  cfg.Dispatcher,
		evaluator:   cfg.Evaluator,
		reranker:    reranker,
		manager:     cfg.Manager,
		blacklist:   cfg.Blacklist,
		objectStore: cfg.ObjectStore,
		preMode:     cfg.PreMode,
		defaultTopK: topK,
	}
}

// Query looks for a cached answer to req.Prompt under req.Model.
func (a *Adapter) Query(ctx context.Context, req QueryRequest) QueryResponse {
	start := time.Now()
	model := models.NormalizeModel(req.Model)

	if a.blacklist.Blocked(model) {
		return a.logAndReturnQuery(ctx, model, "", QueryResponse{
			ErrorCode: models.CodeModelBlacklisted,
			ErrorDesc: "model is blacklisted",
		}, start, req)
	}

	text := preprocess.Process(req.Prompt, a.preMode)
	if text == "" {
		return a.logAndReturnQuery(ctx, model, text, QueryResponse{
			ErrorCode: models.CodeMissingField,
			ErrorDesc: "prompt has no content",
		}, start, req)
	}

	vec, err := a.dispatcher.Embed(ctx, text)
	if err != nil {
		code, desc := envelopeFromErr(models.NewEmbedError(models.CodeQueryEmbedFailed, "embed query", err))
		return a.logAndReturnQuery(ctx, model, text, QueryResponse{ErrorCode: code, ErrorDesc: desc}, start, req)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = a.defaultTopK
	}
	hits, err := a.manager.Search(ctx, model, vec, topK)
	if err != nil {
		code, desc := envelopeFromErr(models.NewStoreError(models.CodeQueryStoreFailed, "search", err, true))
		return a.logAndReturnQuery(ctx, model, text, QueryResponse{ErrorCode: code, ErrorDesc: desc}, start, req)
	}

	promptLen := models.SerializedLen(text)
	kept := make([]rankedHit, 0, len(hits))
	for _, h := range hits {
		score := h.Score
		if rerankScore, err := a.reranker.Rerank(ctx, text, h.Entry.Prompt); err == nil && rerankScore != 0 {
			score = rerankScore
		}
		if !a.evaluator.Accept(score, promptLen) {
			continue
		}
		kept = append(kept, rankedHit{hit: h, rank: a.evaluator.Rank(score)})
	}

	if len(kept) == 0 {
		return a.logAndReturnQuery(ctx, model, text, QueryResponse{ErrorCode: models.CodeSuccess, CacheHit: false}, start, req)
	}

	// SORT by rank desc, ties broken by the vector index's own order, then
	// POST_PROCESS picks the best-ranked survivor.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].rank > kept[j].rank })
	best := kept[0].hit

	answerText := a.resolveAnswer(ctx, best.Entry.Answer)
	// Best-effort hit-count bump, off the response path.
	go func(ctx context.Context, id string) {
		if err := a.manager.IncrementHitCount(ctx, model, id); err != nil {
			log.Warn().Err(err).Str("model", model).Str("id", id).Msg("adapter: hit count update failed")
		}
	}(context.WithoutCancel(ctx), best.Entry.ID)

	resp := QueryResponse{
		ErrorCode: models.CodeSuccess,
		CacheHit:  true,
		Answer:    answerText,
		HitQuery:  best.Entry.Prompt,
		Score:     kept[0].rank,
	}
	return a.logAndReturnQuery(ctx, model, text, resp, start, req)
}

// rankedHit pairs a surviving search hit with its final rank. Ties are
// broken by insertion (vector-index) order via a stable sort, per
// spec.md's tie-break rule, so no explicit order field is needed here.
type rankedHit struct {
	hit  datamanager.SearchHit
	rank float64
}

func (a *Adapter) resolveAnswer(ctx context.Context, answer models.Answer) string {
	if answer.Type != models.AnswerTypeObject || a.objectStore == nil {
		return preprocess.PostProcess(answer)
	}
	data, err := a.objectStore.Get(ctx, answer.Handle)
	if err != nil {
		log.Warn().Err(err).Str("handle", answer.Handle).Msg("adapter: object store resolve failed")
		return ""
	}
	return string(data)
}

func (a *Adapter) logAndReturnQuery(ctx context.Context, model, query string, resp QueryResponse, start time.Time, req QueryRequest) QueryResponse {
	a.manager.LogQuery(ctx, models.QueryLogEntry{
		ErrorCode: int64(resp.ErrorCode),
		ErrorDesc: resp.ErrorDesc,
		CacheHit:  resp.CacheHit,
		Model:     model,
		Query:     query,
		DeltaTime: time.Since(start).Seconds(),
		HitQuery:  resp.HitQuery,
		Answer:    resp.Answer,
	})
	return resp
}

// Insert stores one or more prompt/answer pairs under req.Model in a single
// batch: PARSE/FILTER each pair, PRE_PROCESS all of them, EMBED the whole
// batch together (one dispatcher round trip), then SAVE via the data
// manager's own batched import.
func (a *Adapter) Insert(ctx context.Context, req InsertRequest) InsertResponse {
	model := models.NormalizeModel(req.Model)

	if a.blacklist.Blocked(model) {
		return InsertResponse{ErrorCode: models.CodeInsertBlacklisted, ErrorDesc: "model is blacklisted"}
	}

	pairs := req.Pairs()
	if len(pairs) == 0 {
		return InsertResponse{ErrorCode: models.CodeInsertShapeMismatch, ErrorDesc: "chat_info is empty"}
	}

	texts := make([]string, len(pairs))
	answers := make([]models.Answer, len(pairs))
	for i, p := range pairs {
		text := preprocess.Process(p.Query, a.preMode)
		if text == "" {
			return InsertResponse{ErrorCode: models.CodeInsertShapeMismatch, ErrorDesc: "prompt has no content"}
		}
		texts[i] = text

		answer := p.Answer
		if answer.Type == "" {
			answer.Type = models.AnswerTypeString
		}
		if answer.Type == models.AnswerTypeObject && a.objectStore != nil && answer.Handle == "" && answer.Text != "" {
			handle, err := a.objectStore.Put(ctx, model, text, []byte(answer.Text))
			if err != nil {
				code, desc := envelopeFromErr(models.NewStoreError(models.CodeInsertSaveFailed, "object store put", err, true))
				return InsertResponse{ErrorCode: code, ErrorDesc: desc}
			}
			answer.Handle = handle
			answer.Text = ""
		}
		answers[i] = answer
	}

	vecs, err := a.dispatcher.EmbedBatch(ctx, texts)
	if err != nil {
		code, desc := envelopeFromErr(models.NewEmbedError(models.CodeInsertEmbedFailed, "embed prompts", err))
		return InsertResponse{ErrorCode: code, ErrorDesc: desc}
	}

	entries := make([]models.CacheEntry, len(pairs))
	for i := range pairs {
		entries[i] = models.CacheEntry{
			Prompt:    texts[i],
			Answer:    answers[i],
			Embedding: vecs[i],
		}
	}

	saved, err := a.manager.Import(ctx, model, entries)
	if err != nil {
		code, desc := envelopeFromErr(models.NewStoreError(models.CodeInsertSaveFailed, "persist entry", err, true))
		return InsertResponse{ErrorCode: code, ErrorDesc: desc}
	}

	ids := make([]string, len(saved))
	for i, e := range saved {
		ids[i] = e.ID
	}
	resp := InsertResponse{ErrorCode: models.CodeSuccess, IDs: ids}
	if len(ids) > 0 {
		resp.ID = ids[0]
	}
	return resp
}

// Remove deletes entries from req.Model per req.Mode.
func (a *Adapter) Remove(ctx context.Context, req RemoveRequest) RemoveResponse {
	model := models.NormalizeModel(req.Model)

	switch req.Mode {
	case RemoveModeTruncate:
		status, err := a.manager.TruncateModel(ctx, model)
		if err != nil {
			code, desc := envelopeFromErr(models.NewStoreError(models.CodeRemoveFailed, "truncate model", err, true))
			return RemoveResponse{ErrorCode: code, ErrorDesc: desc}
		}
		return removeResponseFromStatus(status)

	case RemoveModeID:
		if len(req.IDs) == 0 {
			return RemoveResponse{ErrorCode: models.CodeRemoveUnknownMode, ErrorDesc: "no ids given"}
		}
		status, err := a.manager.DeleteByIDs(ctx, model, req.IDs)
		if err != nil {
			code, desc := envelopeFromErr(models.NewStoreError(models.CodeRemoveFailed, "delete by ids", err, true))
			return RemoveResponse{ErrorCode: code, ErrorDesc: desc}
		}
		return removeResponseFromStatus(status)

	default:
		return RemoveResponse{ErrorCode: models.CodeRemoveUnknownMode, ErrorDesc: "unknown remove mode"}
	}
}

// removeResponseFromStatus names exactly which stores succeeded: a vector
// failure still reports CodeSuccess (the scalar store, the source of
// truth, did delete the rows) but flips VectorOK off and surfaces the
// vector error in ErrorDesc so the caller can diagnose the partial result.
func removeResponseFromStatus(status datamanager.RemoveStatus) RemoveResponse {
	resp := RemoveResponse{
		ErrorCode: models.CodeSuccess,
		Removed:   status.ScalarRemoved,
		VectorOK:  status.VectorOK,
	}
	if status.Partial() {
		resp.ErrorDesc = fmt.Sprintf("scalar store updated but vector index was not: %v", status.VectorErr)
	}
	return resp
}

// Register pre-provisions req.Model's vector collection.
func (a *Adapter) Register(ctx context.Context, req RegisterRequest) RegisterResponse {
	model := models.NormalizeModel(req.Model)

	res, err := a.manager.EnsureCollection(ctx, model)
	if err != nil {
		code, desc := envelopeFromErr(models.NewStoreError(models.CodeRegisterFailed, "register model", err, false))
		return RegisterResponse{ErrorCode: code, ErrorDesc: desc}
	}
	return RegisterResponse{ErrorCode: models.CodeSuccess, Created: res == vector.CreateResultCreated}
}
