package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

type mockRetriever struct {
	results  []domain.ScoredChunk
	embedErr error
	err      error

	gotTopK    int
	gotFilters domain.QueryFilters
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, topK int, filters domain.QueryFilters) ([]domain.ScoredChunk, error) {
	m.gotTopK = topK
	m.gotFilters = filters
	return m.results, m.err
}

func (m *mockRetriever) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{1, 0}, nil
}

func (m *mockRetriever) DocumentCount(_ context.Context) (int, error) {
	return len(m.results), nil
}

type spyReranker struct {
	called bool
}

func (s *spyReranker) Rerank(_ context.Context, _ []float32, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, error) {
	s.called = true
	// Reverse to prove the pipeline serves the reranked order.
	out := make([]domain.ScoredChunk, 0, topK)
	for i := len(candidates) - 1; i >= 0 && len(out) < topK; i-- {
		out = append(out, candidates[i])
	}
	return out, nil
}

func tenChunks() []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 10)
	for i := range out {
		out[i] = domain.ScoredChunk{
			Chunk: domain.Chunk{ID: string(rune('a' + i))},
			Score: float32(10-i) / 10,
		}
	}
	return out
}

func TestPipelineRunWithReranker(t *testing.T) {
	retr := &mockRetriever{results: tenChunks()}
	rr := &spyReranker{}
	p := NewPipeline(retr, rr, nil)

	results, elapsed, err := p.Run(context.Background(), "modbus attack", RunOptions{TopK: 3, RetrievalK: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !rr.called {
		t.Error("reranker was not invoked")
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Chunk.ID != "j" {
		t.Errorf("top result = %q, want reranked order", results[0].Chunk.ID)
	}
	if retr.gotTopK != 10 {
		t.Errorf("retriever received topK %d, want 10", retr.gotTopK)
	}
	if elapsed < 0 {
		t.Errorf("elapsed = %v, want >= 0", elapsed)
	}
}

func TestPipelineRunWithoutReranker(t *testing.T) {
	retr := &mockRetriever{results: tenChunks()}
	p := NewPipeline(retr, nil, nil)

	results, _, err := p.Run(context.Background(), "q", RunOptions{TopK: 4, RetrievalK: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	if results[0].Chunk.ID != "a" {
		t.Errorf("top result = %q, want vector order preserved", results[0].Chunk.ID)
	}
}

func TestPipelineRunDefaults(t *testing.T) {
	retr := &mockRetriever{results: tenChunks()}
	p := NewPipeline(retr, nil, nil)

	results, _, err := p.Run(context.Background(), "q", RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if retr.gotTopK != 20 {
		t.Errorf("default retrieval k = %d, want 20", retr.gotTopK)
	}
	if len(results) != 5 {
		t.Errorf("default topK gave %d results, want 5", len(results))
	}
}

func TestPipelineRunRetrieveError(t *testing.T) {
	wantErr := errors.New("index unavailable")
	p := NewPipeline(&mockRetriever{err: wantErr}, nil, nil)

	if _, _, err := p.Run(context.Background(), "q", RunOptions{}); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestPipelineRunEmbedError(t *testing.T) {
	wantErr := errors.New("embed down")
	p := NewPipeline(&mockRetriever{results: tenChunks(), embedErr: wantErr}, &spyReranker{}, nil)

	if _, _, err := p.Run(context.Background(), "q", RunOptions{}); !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestPipelineRunEmptyCandidatesSkipsReranker(t *testing.T) {
	rr := &spyReranker{}
	p := NewPipeline(&mockRetriever{}, rr, nil)

	results, _, err := p.Run(context.Background(), "q", RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rr.called {
		t.Error("reranker called with no candidates")
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestPipelineTotalDocuments(t *testing.T) {
	p := NewPipeline(&mockRetriever{results: tenChunks()}, nil, nil)
	n, err := p.TotalDocuments(context.Background())
	if err != nil {
		t.Fatalf("TotalDocuments() error = %v", err)
	}
	if n != 10 {
		t.Errorf("TotalDocuments() = %d, want 10", n)
	}
}
