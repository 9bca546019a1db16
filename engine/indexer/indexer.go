// Package indexer bridges embedding generation and the vector index: it
// embeds chunks that lack vectors and adds the combined set to the index.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/fn"
)

// DefaultBatchSize is the number of texts per embedding request.
const DefaultBatchSize = 10

// Embedder generates embeddings for batches of texts.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Indexer embeds and indexes document chunks.
type Indexer struct {
	embedder Embedder
	backend  index.Backend
	logger   *slog.Logger
}

// New creates an Indexer.
func New(embedder Embedder, backend index.Backend, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, backend: backend, logger: logger}
}

// IndexChunks embeds the chunks that have no embedding yet, in batches of
// batchSize, then adds the full set to the index. Returns the number of
// chunks indexed.
func (ix *Indexer) IndexChunks(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	unembedded := fn.Filter(chunks, func(c domain.Chunk) bool { return c.Embedding == nil })
	embedded := fn.Filter(chunks, func(c domain.Chunk) bool { return c.Embedding != nil })

	if len(unembedded) > 0 {
		texts := fn.Map(unembedded, func(c domain.Chunk) string { return c.Content })
		vectors, err := ix.embedder.EmbedTexts(ctx, texts, batchSize)
		if err != nil {
			return 0, fmt.Errorf("indexer: embed %d chunks: %w", len(texts), err)
		}
		if len(vectors) != len(unembedded) {
			return 0, fmt.Errorf("indexer: embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i := range unembedded {
			unembedded[i].Embedding = vectors[i]
		}
	}

	all := append(embedded, unembedded...)
	if len(all) == 0 {
		return 0, nil
	}
	if err := ix.backend.Add(ctx, all); err != nil {
		return 0, fmt.Errorf("indexer: add: %w", err)
	}

	ix.logger.Info("indexed chunks", "total", len(all), "embedded", len(unembedded))
	return len(all), nil
}

// ReindexAll deletes any existing entries for the given chunks, clears their
// embeddings, and re-runs IndexChunks. Used to force recomputation after an
// embedding-model change.
func (ix *Indexer) ReindexAll(ctx context.Context, chunks []domain.Chunk, batchSize int) (int, error) {
	ids := fn.Map(chunks, func(c domain.Chunk) string { return c.ID })
	if err := ix.backend.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("indexer: delete before reindex: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	return ix.IndexChunks(ctx, chunks, batchSize)
}
