package retrieval

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// Retriever is the search surface the pipeline consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filters domain.QueryFilters) ([]domain.ScoredChunk, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	DocumentCount(ctx context.Context) (int, error)
}

// RunOptions configures a single pipeline run.
type RunOptions struct {
	TopK       int
	RetrievalK int
	Filters    domain.QueryFilters
}

// DefaultRunOptions returns the serving defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{TopK: 5, RetrievalK: 20}
}

// Pipeline orchestrates retrieve-then-rerank for a query. The reranker may
// be nil, in which case the vector ordering is served directly.
type Pipeline struct {
	retriever Retriever
	reranker  Reranker
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(retriever Retriever, reranker Reranker, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{retriever: retriever, reranker: reranker, logger: logger}
}

// TotalDocuments returns the chunk count of the backing index.
func (p *Pipeline) TotalDocuments(ctx context.Context) (int, error) {
	return p.retriever.DocumentCount(ctx)
}

// Run executes retrieve-filter-rerank and reports the elapsed wall time in
// milliseconds alongside the results.
func (p *Pipeline) Run(ctx context.Context, query string, opts RunOptions) ([]domain.ScoredChunk, float64, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultRunOptions().TopK
	}
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = DefaultRunOptions().RetrievalK
	}

	ctx, span := otel.Tracer("engine/retrieval").Start(ctx, "pipeline.run")
	defer span.End()

	start := time.Now()

	candidates, err := p.retriever.Retrieve(ctx, query, opts.RetrievalK, opts.Filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	results := candidates
	if p.reranker != nil && len(candidates) > 0 {
		queryEmbedding, err := p.retriever.EmbedQuery(ctx, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, 0, err
		}
		results, err = p.reranker.Rerank(ctx, queryEmbedding, candidates, opts.TopK)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, 0, err
		}
	} else if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	p.logger.Info("pipeline run",
		"query_len", len(query),
		"candidates", len(candidates),
		"results", len(results),
		"reranked", p.reranker != nil,
		"elapsed_ms", elapsed)
	return results, elapsed, nil
}
