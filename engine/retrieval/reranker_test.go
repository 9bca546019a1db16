package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/rank"
)

// similarityStump scores 1.0 when embedding similarity exceeds 0.8, else 0.
// A hand-built single-tree model keeps reranker tests deterministic.
func similarityStump() *rank.Model {
	return &rank.Model{
		LearningRate: 1.0,
		Trees: []rank.Tree{{Nodes: []rank.TreeNode{
			{Feature: rank.FeatEmbeddingSimilarity, Threshold: 0.8, Left: 1, Right: 2},
			{Leaf: true, Value: 0.0},
			{Leaf: true, Value: 1.0},
		}}},
	}
}

func scored(id string, emb []float32, score float32) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{ID: id, Embedding: emb, Metadata: domain.Metadata{
			Published: time.Now().UTC().AddDate(0, 0, -10),
		}},
		Score: score,
	}
}

func TestModelRerankerReorders(t *testing.T) {
	r := NewModelReranker(rank.NewPredictor(similarityStump()))
	query := []float32{1, 0, 0, 0}

	// Vector ordering puts the dissimilar chunk first; the model flips it.
	candidates := []domain.ScoredChunk{
		scored("far", []float32{0, 1, 0, 0}, 0.9),
		scored("near", []float32{1, 0, 0, 0}, 0.5),
	}

	got, err := r.Rerank(context.Background(), query, candidates, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Chunk.ID != "near" {
		t.Errorf("top result = %q, want near", got[0].Chunk.ID)
	}
	if got[0].Score != 1.0 || got[1].Score != 0.0 {
		t.Errorf("model scores = %v, %v, want 1.0, 0.0", got[0].Score, got[1].Score)
	}
}

func TestModelRerankerTopK(t *testing.T) {
	r := NewModelReranker(rank.NewPredictor(similarityStump()))
	query := []float32{1, 0, 0, 0}
	candidates := []domain.ScoredChunk{
		scored("a", []float32{1, 0, 0, 0}, 0.9),
		scored("b", []float32{0, 1, 0, 0}, 0.8),
		scored("c", []float32{0, 0, 1, 0}, 0.7),
	}

	got, err := r.Rerank(context.Background(), query, candidates, 1)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != "a" {
		t.Errorf("got %v, want single result a", got)
	}
}

func TestModelRerankerEmpty(t *testing.T) {
	r := NewModelReranker(rank.NewPredictor(similarityStump()))
	got, err := r.Rerank(context.Background(), []float32{1, 0}, nil, 5)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestModelRerankerNoModel(t *testing.T) {
	r := NewModelReranker(rank.NewPredictor(nil))
	_, err := r.Rerank(context.Background(), []float32{1, 0}, []domain.ScoredChunk{
		scored("a", []float32{1, 0}, 0.5),
	}, 1)
	if !errors.Is(err, domain.ErrModelNotLoaded) {
		t.Errorf("Rerank() error = %v, want ErrModelNotLoaded", err)
	}
}

func TestModelRerankerMissingEmbeddingAndDate(t *testing.T) {
	r := NewModelReranker(rank.NewPredictor(similarityStump()))
	candidates := []domain.ScoredChunk{
		{Chunk: domain.Chunk{ID: "bare"}, Score: 0.4},
	}
	got, err := r.Rerank(context.Background(), []float32{1, 0, 0, 0}, candidates, 1)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 1 || got[0].Score != 0.0 {
		t.Errorf("bare chunk should score at the low leaf, got %v", got)
	}
}

func TestNoopRerankerTruncates(t *testing.T) {
	candidates := []domain.ScoredChunk{
		scored("a", nil, 0.9),
		scored("b", nil, 0.8),
		scored("c", nil, 0.7),
	}
	got, err := NoopReranker{}.Rerank(context.Background(), nil, candidates, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(got) != 2 || got[0].Chunk.ID != "a" || got[1].Chunk.ID != "b" {
		t.Errorf("noop rerank changed ordering: %v", got)
	}
}
