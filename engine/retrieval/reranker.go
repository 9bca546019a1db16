package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/rank"
)

// Reranker reorders retrieval candidates and returns the topK best.
type Reranker interface {
	Rerank(ctx context.Context, queryEmbedding []float32, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error)
}

// Chunks without a published date get a fixed mid-corpus date so the decay
// and recency features stay defined.
var fallbackPublished = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ModelReranker rescores candidates with the trained ranking model. The
// query side carries no protocol or asset sets here, so the two match
// features contribute nothing; the model leans on similarity and the
// time-based features instead.
type ModelReranker struct {
	predictor *rank.Predictor
	extractor *rank.Extractor
}

// NewModelReranker creates a ModelReranker over a predictor.
func NewModelReranker(predictor *rank.Predictor) *ModelReranker {
	return &ModelReranker{predictor: predictor, extractor: rank.NewExtractor()}
}

// Rerank scores every candidate with the model and returns the topK highest,
// replacing the vector score with the model score.
func (r *ModelReranker) Rerank(ctx context.Context, queryEmbedding []float32, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: rerank: %w", err)
	}

	features := make([][]float64, len(candidates))
	for i, c := range candidates {
		md := c.Chunk.Metadata
		published := md.Published
		if published.IsZero() {
			published = fallbackPublished
		}
		features[i] = r.extractor.Extract(
			queryEmbedding, c.Chunk.Embedding, published,
			nil, md.Protocols,
			nil, md.AssetTypes,
			0,
		)
	}

	scores, err := r.predictor.PredictScores(features)
	if err != nil {
		return nil, fmt.Errorf("retrieval: rerank: %w", err)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}
	out := make([]domain.ScoredChunk, topK)
	for i := 0; i < topK; i++ {
		out[i] = domain.ScoredChunk{
			Chunk: candidates[order[i]].Chunk,
			Score: float32(scores[order[i]]),
		}
	}
	return out, nil
}

// NoopReranker keeps the vector-score ordering. Used when no model artifact
// is available.
type NoopReranker struct{}

// Rerank truncates to topK without reordering.
func (NoopReranker) Rerank(_ context.Context, _ []float32, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]domain.ScoredChunk, topK)
	copy(out, candidates[:topK])
	return out, nil
}
