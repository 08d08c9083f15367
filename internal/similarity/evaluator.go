// Package similarity implements the threshold evaluator (C7): deciding
// whether a vector index hit is close enough to answer a query from cache,
// using the short/long prompt boundary to pick between two thresholds.
package similarity

import (
	"math"

	"github.com/thebtf/semcache/internal/config"
)

// Evaluator holds the metric and threshold configuration needed to turn a
// raw vector-index score into an accept/reject decision.
type Evaluator struct {
	metric             config.Metric
	threshold          float64
	thresholdLong      float64
	maxDistance        float64
	longPromptBoundary int
}

// New builds an Evaluator from the engine's similarity configuration.
func New(cfg *config.Config) *Evaluator {
	return &Evaluator{
		metric:             cfg.Metric,
		threshold:          cfg.SimilarityThreshold,
		thresholdLong:      cfg.ThresholdLong,
		maxDistance:        cfg.MaxDistance,
		longPromptBoundary: cfg.LongPromptBoundary,
	}
}

// ThresholdFor returns the similarity (or distance) threshold applicable to
// a prompt of the given code-point length: long prompts get their own,
// usually more lenient, threshold.
func (e *Evaluator) ThresholdFor(promptLen int) float64 {
	if promptLen > e.longPromptBoundary {
		return e.thresholdLong
	}
	return e.threshold
}

// Accept reports whether score clears the bar for a prompt of promptLen
// code points: for cosine similarity, score must be >= the threshold; for
// L2 distance, score must be <= maxDistance and the normalized similarity
// derived from it must clear the threshold.
func (e *Evaluator) Accept(score float64, promptLen int) bool {
	threshold := e.ThresholdFor(promptLen)
	switch e.metric {
	case config.MetricL2:
		if score > e.maxDistance {
			return false
		}
		return e.l2ToSimilarity(score) >= threshold
	default: // cosine
		return score >= threshold
	}
}

// l2ToSimilarity maps an L2 distance onto [0,1] using the configured
// maxDistance as the point where similarity reaches zero, so L2 and cosine
// deployments can share one threshold scale.
func (e *Evaluator) l2ToSimilarity(distance float64) float64 {
	if e.maxDistance <= 0 {
		return 0
	}
	sim := 1 - distance/e.maxDistance
	return math.Max(0, math.Min(1, sim))
}

// Rank converts a hit's raw score into the normalized [0,1] similarity used
// for logging and reranking, regardless of metric.
func (e *Evaluator) Rank(score float64) float64 {
	if e.metric == config.MetricL2 {
		return e.l2ToSimilarity(score)
	}
	return score
}
