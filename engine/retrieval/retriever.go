// Package retrieval combines vector search, metadata filtering and learned
// reranking into the query-serving pipeline, and owns hot-reload of the
// index snapshot behind it.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
)

// QueryEmbedder turns query text into an embedding vector.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Options configures the retriever.
type Options struct {
	// Overfetch multiplies topK for the vector search so metadata filters
	// have headroom to drop candidates without starving the result set.
	Overfetch int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Overfetch: 2}
}

// HybridRetriever runs vector similarity search and narrows the candidates
// with metadata filters.
type HybridRetriever struct {
	embedder QueryEmbedder
	backend  index.Backend
	opts     Options
	logger   *slog.Logger
}

// NewHybridRetriever creates a HybridRetriever.
func NewHybridRetriever(embedder QueryEmbedder, backend index.Backend, opts Options, logger *slog.Logger) *HybridRetriever {
	if opts.Overfetch <= 0 {
		opts.Overfetch = DefaultOptions().Overfetch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{embedder: embedder, backend: backend, opts: opts, logger: logger}
}

// DocumentCount returns the number of chunks in the backing index.
func (r *HybridRetriever) DocumentCount(ctx context.Context) (int, error) {
	return r.backend.Count(ctx)
}

// EmbedQuery embeds query text for downstream reranking.
func (r *HybridRetriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	return vec, nil
}

// Retrieve embeds the query, searches the index with overfetch, applies the
// filters and returns at most topK scored chunks in descending score order.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int, filters domain.QueryFilters) ([]domain.ScoredChunk, error) {
	vec, err := r.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := r.backend.Search(ctx, vec, topK*r.opts.Overfetch)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	if !filters.Empty() {
		before := len(candidates)
		candidates = applyFilters(candidates, filters)
		r.logger.Debug("filters applied", "before", before, "after", len(candidates))
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// applyFilters keeps candidates compatible with every constrained dimension.
// Severity, protocol and asset filters pass chunks that lack the field, so
// sparsely tagged sources are not silently excluded. The threat category
// filter is strict and requires the field.
func applyFilters(candidates []domain.ScoredChunk, f domain.QueryFilters) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		md := c.Chunk.Metadata

		if len(f.Severity) > 0 && md.Severity != "" && !contains(f.Severity, md.Severity) {
			continue
		}
		if len(f.Protocols) > 0 && len(md.Protocols) > 0 && !overlaps(f.Protocols, md.Protocols) {
			continue
		}
		if len(f.AssetTypes) > 0 && len(md.AssetTypes) > 0 && !overlaps(f.AssetTypes, md.AssetTypes) {
			continue
		}
		if len(f.ThreatCategories) > 0 &&
			(md.ThreatCategory == "" || !contains(f.ThreatCategories, md.ThreatCategory)) {
			continue
		}
		if !md.Published.IsZero() {
			if !f.DateFrom.IsZero() && md.Published.Before(f.DateFrom) {
				continue
			}
			if !f.DateTo.IsZero() && md.Published.After(f.DateTo) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func contains[T ~string](list []T, v string) bool {
	for _, item := range list {
		if string(item) == v {
			return true
		}
	}
	return false
}

func overlaps[T ~string](filter []T, doc []string) bool {
	for _, f := range filter {
		for _, d := range doc {
			if string(f) == d {
				return true
			}
		}
	}
	return false
}
