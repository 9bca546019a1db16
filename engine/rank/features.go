// Package rank implements the learned reranking stage: feature extraction
// for (query, candidate) pairs, a gradient-boosted LambdaRank model with
// train/predict/persist, and a seeded synthetic training-data generator.
package rank

import (
	"math"
	"time"
)

// Feature vector layout. The order is load-bearing: the model is trained
// positionally against it.
const (
	FeatEmbeddingSimilarity = iota
	FeatTemporalDecay
	FeatProtocolMatch
	FeatAssetTypeMatch
	FeatPopularity
	FeatRecencyBoost

	NumFeatures
)

// FeatureNames maps positions to names, for importance reporting.
var FeatureNames = [NumFeatures]string{
	"embedding_similarity",
	"temporal_decay",
	"protocol_match",
	"asset_type_match",
	"popularity_score",
	"recency_boost",
}

const (
	// DefaultHalfLifeDays controls the temporal decay feature.
	DefaultHalfLifeDays = 180.0
	// DefaultBoostDays is the recency boost window.
	DefaultBoostDays = 30.0
	// DefaultMaxInteractions saturates the popularity feature.
	DefaultMaxInteractions = 100
)

// Extractor computes ranking features. All functions are total: degenerate
// inputs (zero vectors, empty sets) produce defined sentinel values instead
// of errors.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an Extractor using wall-clock time.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt creates an Extractor with a fixed clock, for reproducible
// feature values.
func NewExtractorAt(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// EmbeddingSimilarity returns the cosine similarity of two vectors, or 0.0
// if either has zero norm.
func EmbeddingSimilarity(q, d []float32) float64 {
	n := len(q)
	if len(d) < n {
		n = len(d)
	}
	var dot, qn, dn float64
	for i := 0; i < n; i++ {
		dot += float64(q[i]) * float64(d[i])
	}
	for _, v := range q {
		qn += float64(v) * float64(v)
	}
	for _, v := range d {
		dn += float64(v) * float64(v)
	}
	if qn == 0 || dn == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(dn))
}

// TemporalDecay returns exp(-ln2 * age_days / halfLifeDays): 1.0 for brand
// new or future documents, 0.5 at exactly one half-life.
func (e *Extractor) TemporalDecay(published time.Time, halfLifeDays float64) float64 {
	ageDays := e.now().Sub(published).Seconds() / 86400.0
	if ageDays <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// MetadataMatch returns the Jaccard similarity of two value sets. By
// convention an empty set on either side (including both empty) scores 0.0.
func MetadataMatch(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		setB[v] = true
	}
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// PopularityScore log-normalises an interaction count into [0, 1],
// saturating at maxInteractions.
func PopularityScore(interactionCount, maxInteractions int) float64 {
	if interactionCount <= 0 {
		return 0.0
	}
	return math.Min(1.0, math.Log1p(float64(interactionCount))/math.Log1p(float64(maxInteractions)))
}

// RecencyBoost is a linear ramp from 1.0 (just published, or future) down
// to 0.0 at boostDays and beyond.
func (e *Extractor) RecencyBoost(published time.Time, boostDays float64) float64 {
	ageDays := e.now().Sub(published).Seconds() / 86400.0
	if ageDays < 0 {
		return 1.0
	}
	if ageDays > boostDays {
		return 0.0
	}
	return 1.0 - ageDays/boostDays
}

// Extract assembles the ordered feature vector for a query-document pair.
func (e *Extractor) Extract(
	queryEmbedding, docEmbedding []float32,
	docPublished time.Time,
	queryProtocols, docProtocols []string,
	queryAssetTypes, docAssetTypes []string,
	interactionCount int,
) []float64 {
	f := make([]float64, NumFeatures)
	f[FeatEmbeddingSimilarity] = EmbeddingSimilarity(queryEmbedding, docEmbedding)
	f[FeatTemporalDecay] = e.TemporalDecay(docPublished, DefaultHalfLifeDays)
	f[FeatProtocolMatch] = MetadataMatch(queryProtocols, docProtocols)
	f[FeatAssetTypeMatch] = MetadataMatch(queryAssetTypes, docAssetTypes)
	f[FeatPopularity] = PopularityScore(interactionCount, DefaultMaxInteractions)
	f[FeatRecencyBoost] = e.RecencyBoost(docPublished, DefaultBoostDays)
	return f
}
