package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
)

type mockEmbedder struct {
	texts []string
	batch int
	vecs  [][]float32
	err   error
}

func (m *mockEmbedder) EmbedTexts(_ context.Context, texts []string, batchSize int) ([][]float32, error) {
	m.texts = texts
	m.batch = batchSize
	if m.err != nil {
		return nil, m.err
	}
	if m.vecs != nil {
		return m.vecs, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func chunkWith(id string, emb []float32) domain.Chunk {
	return domain.Chunk{ID: id, SourceID: "s", SourceType: domain.SourceAdvisory, Content: "text " + id, Embedding: emb}
}

func TestIndexChunks_EmbedsOnlyMissing(t *testing.T) {
	ctx := context.Background()
	emb := &mockEmbedder{}
	idx := index.NewFlat(4)
	ix := New(emb, idx, nil)

	chunks := []domain.Chunk{
		chunkWith("a", []float32{0, 1, 0, 0}),
		chunkWith("b", nil),
		chunkWith("c", nil),
	}
	n, err := ix.IndexChunks(ctx, chunks, 2)
	if err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}
	if n != 3 {
		t.Fatalf("indexed %d, want 3", n)
	}
	if len(emb.texts) != 2 {
		t.Fatalf("embedded %d texts, want 2", len(emb.texts))
	}
	if emb.batch != 2 {
		t.Fatalf("batch size %d, want 2", emb.batch)
	}
	if count, _ := idx.Count(ctx); count != 3 {
		t.Fatalf("index count %d, want 3", count)
	}
}

func TestIndexChunks_EmptyInput(t *testing.T) {
	ix := New(&mockEmbedder{}, index.NewFlat(4), nil)
	n, err := ix.IndexChunks(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}
	if n != 0 {
		t.Fatalf("indexed %d, want 0", n)
	}
}

func TestIndexChunks_EmbedderError(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("throttled")}
	idx := index.NewFlat(4)
	ix := New(emb, idx, nil)

	_, err := ix.IndexChunks(context.Background(), []domain.Chunk{chunkWith("a", nil)}, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	if n, _ := idx.Count(context.Background()); n != 0 {
		t.Fatalf("count = %d after failed embed", n)
	}
}

func TestIndexChunks_VectorCountMismatch(t *testing.T) {
	emb := &mockEmbedder{vecs: [][]float32{}}
	ix := New(emb, index.NewFlat(4), nil)

	_, err := ix.IndexChunks(context.Background(), []domain.Chunk{chunkWith("a", nil)}, 10)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestReindexAll(t *testing.T) {
	ctx := context.Background()
	emb := &mockEmbedder{}
	idx := index.NewFlat(4)
	ix := New(emb, idx, nil)

	chunks := []domain.Chunk{
		chunkWith("a", []float32{0, 1, 0, 0}),
		chunkWith("b", []float32{0, 0, 1, 0}),
	}
	if _, err := ix.IndexChunks(ctx, chunks, 10); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	// Reindex must re-embed everything, including previously embedded chunks.
	n, err := ix.ReindexAll(ctx, chunks, 10)
	if err != nil {
		t.Fatalf("ReindexAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("reindexed %d, want 2", n)
	}
	if len(emb.texts) != 2 {
		t.Fatalf("re-embedded %d texts, want 2", len(emb.texts))
	}
	if count, _ := idx.Count(ctx); count != 2 {
		t.Fatalf("count = %d after reindex, want 2", count)
	}
}
