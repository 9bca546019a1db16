// Package index implements the vector index used for similarity retrieval.
// The primary backend is Flat: an exact, in-memory inner-product index over
// unit-normalised rows, with paired on-disk artifacts. A Qdrant-backed
// implementation of the same capability interface is provided for remote
// deployments.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// Backend is the capability interface for vector index backends.
type Backend interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, query []float32, topK int) ([]domain.ScoredChunk, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
}

// DefaultDimension matches the Titan v2 embedding width.
const DefaultDimension = 1024

// Flat is an exact inner-product index over a dense row-major matrix.
// Rows are unit-L2 normalised on insert, so inner product equals cosine
// similarity. Search never mutates state; Add/Delete/Load take the write
// lock, giving single-writer/multi-reader discipline.
type Flat struct {
	mu     sync.RWMutex
	dim    int
	chunks []domain.Chunk
	matrix []float32 // row i at [i*dim : (i+1)*dim], parallel to chunks
	pos    map[string]int
}

// NewFlat creates an empty flat index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Flat{dim: dim, pos: make(map[string]int)}
}

// Dimension returns the declared vector dimensionality. After a Load this is
// authoritative and may differ from the constructor's value.
func (f *Flat) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Add appends chunks to the index. Every chunk must carry an embedding of
// the declared dimension; on error nothing is added.
func (f *Flat) Add(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(chunks)
}

func (f *Flat) addLocked(chunks []domain.Chunk) error {
	for _, c := range chunks {
		if c.Embedding == nil {
			return fmt.Errorf("index: chunk %s: %w", c.ID, domain.ErrUnembeddedChunk)
		}
		if len(c.Embedding) != f.dim {
			return fmt.Errorf("index: chunk %s: embedding dimension %d, index dimension %d",
				c.ID, len(c.Embedding), f.dim)
		}
	}
	for _, c := range chunks {
		row := normalize(c.Embedding)
		f.pos[c.ID] = len(f.chunks)
		f.chunks = append(f.chunks, c)
		f.matrix = append(f.matrix, row...)
	}
	return nil
}

// Search returns the topK most similar chunks to the query vector in
// descending score order. An empty index yields an empty result; a topK
// larger than the index returns everything.
func (f *Flat) Search(_ context.Context, query []float32, topK int) ([]domain.ScoredChunk, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.chunks)
	if n == 0 || topK <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("index: query dimension %d, index dimension %d", len(query), f.dim)
	}

	q := normalize(query)
	scores := make([]float32, n)
	for i := 0; i < n; i++ {
		row := f.matrix[i*f.dim : (i+1)*f.dim]
		var s float32
		for j, v := range row {
			s += v * q[j]
		}
		scores[i] = s
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > n {
		topK = n
	}
	results := make([]domain.ScoredChunk, topK)
	for i := 0; i < topK; i++ {
		idx := order[i]
		results[i] = domain.ScoredChunk{Chunk: f.chunks[idx], Score: scores[idx]}
	}
	return results, nil
}

// Delete removes the given chunk IDs and rebuilds the index from the
// survivors. Unknown IDs are ignored, so Delete is idempotent.
func (f *Flat) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	survivors := make([]domain.Chunk, 0, len(f.chunks))
	for _, c := range f.chunks {
		if !remove[c.ID] {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == len(f.chunks) {
		return nil
	}

	f.resetLocked(f.dim)
	return f.addLocked(survivors)
}

// Count returns the number of stored chunks.
func (f *Flat) Count(_ context.Context) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.chunks), nil
}

// Chunks returns a copy of the stored chunk records in insertion order.
func (f *Flat) Chunks() []domain.Chunk {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Chunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

func (f *Flat) resetLocked(dim int) {
	f.dim = dim
	f.chunks = nil
	f.matrix = nil
	f.pos = make(map[string]int)
}

// normalize returns a unit-L2 copy of v. A zero vector is returned as an
// all-zero copy rather than dividing by zero.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	inv := float32(1 / norm)
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
