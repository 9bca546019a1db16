package rank

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// Model is a trained gradient-boosted ranking model: an additive ensemble of
// regression trees over the 6-feature vector. It is an opaque artifact —
// persisted with gob and reloaded for inference without the training code
// rerunning.
type Model struct {
	Trees        []Tree
	LearningRate float64
	Importance   [NumFeatures]float64
}

// PredictOne scores a single feature vector.
func (m *Model) PredictOne(x []float64) float64 {
	var s float64
	for i := range m.Trees {
		s += m.LearningRate * m.Trees[i].Predict(x)
	}
	return s
}

// Save persists the model artifact.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rank: create model dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rank: create %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("rank: encode model: %w", err)
	}
	return f.Sync()
}

// LoadModel restores a persisted model artifact.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rank: open %s: %w", path, err)
	}
	defer f.Close()
	var m Model
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("rank: decode model %s: %w", path, err)
	}
	return &m, nil
}

// FeatureImportance returns accumulated split gain per feature name.
func (m *Model) FeatureImportance() map[string]float64 {
	out := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		out[name] = m.Importance[i]
	}
	return out
}

// TrainOptions configures the boosting run.
type TrainOptions struct {
	NumTrees     int
	LearningRate float64
	MaxDepth     int
	MinLeaf      int
}

// DefaultTrainOptions mirrors the offline training configuration.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		NumTrees:     100,
		LearningRate: 0.1,
		MaxDepth:     4,
		MinLeaf:      5,
	}
}

// Trainer fits ranking models with a pairwise LambdaRank objective: within
// each query group, pair gradients are weighted by the NDCG change of
// swapping the pair, so the ensemble optimises ranking quality rather than
// pointwise regression error.
type Trainer struct {
	opts TrainOptions
}

// NewTrainer creates a Trainer.
func NewTrainer(opts TrainOptions) *Trainer {
	if opts.NumTrees <= 0 {
		opts.NumTrees = DefaultTrainOptions().NumTrees
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultTrainOptions().MaxDepth
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = DefaultTrainOptions().MinLeaf
	}
	return &Trainer{opts: opts}
}

// Train fits a model on grouped, graded data: features is row-per-candidate,
// labels holds relevance grades 0..4, and groups holds the per-query
// candidate counts (summing to len(labels)).
func (t *Trainer) Train(features [][]float64, labels []int, groups []int) (*Model, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("rank: %d feature rows for %d labels", len(features), len(labels))
	}
	total := 0
	for _, g := range groups {
		if g <= 0 {
			return nil, fmt.Errorf("rank: non-positive group size %d", g)
		}
		total += g
	}
	if total != len(labels) {
		return nil, fmt.Errorf("rank: group sizes sum to %d, have %d rows", total, len(labels))
	}
	for i, row := range features {
		if len(row) != NumFeatures {
			return nil, fmt.Errorf("rank: row %d has %d features, want %d", i, len(row), NumFeatures)
		}
		if labels[i] < 0 || labels[i] > 4 {
			return nil, fmt.Errorf("rank: label %d out of range 0..4 at row %d", labels[i], i)
		}
	}

	model := &Model{LearningRate: t.opts.LearningRate}
	scores := make([]float64, len(labels))
	grad := make([]float64, len(labels))
	hess := make([]float64, len(labels))

	for round := 0; round < t.opts.NumTrees; round++ {
		for i := range grad {
			grad[i], hess[i] = 0, 0
		}
		offset := 0
		for _, size := range groups {
			lambdaGroup(labels[offset:offset+size], scores[offset:offset+size],
				grad[offset:offset+size], hess[offset:offset+size])
			offset += size
		}

		tree, gains := growTree(features, grad, hess, t.opts.MaxDepth, t.opts.MinLeaf)
		model.Trees = append(model.Trees, tree)
		for f := range gains {
			model.Importance[f] += gains[f]
		}
		for i, row := range features {
			scores[i] += t.opts.LearningRate * tree.Predict(row)
		}
	}
	return model, nil
}

// lambdaGroup accumulates LambdaRank gradients and hessians for one query
// group. For each (better, worse) pair the gradient magnitude is the pair's
// crossing probability weighted by the NDCG delta of swapping them.
func lambdaGroup(labels []int, scores, grad, hess []float64) {
	n := len(labels)
	if n < 2 {
		return
	}

	// Current 1-based ranks by descending score.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	ranks := make([]int, n)
	for pos, i := range order {
		ranks[i] = pos + 1
	}

	idcg := idealDCG(labels)
	if idcg == 0 {
		return // no relevant documents in this group
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if labels[i] <= labels[j] {
				continue
			}
			rho := 1.0 / (1.0 + math.Exp(scores[i]-scores[j]))
			delta := math.Abs(gain(labels[i])-gain(labels[j])) *
				math.Abs(discount(ranks[i])-discount(ranks[j])) / idcg
			step := rho * delta
			grad[i] += step
			grad[j] -= step
			w := rho * (1 - rho) * delta
			hess[i] += w
			hess[j] += w
		}
	}
}

func gain(label int) float64    { return math.Exp2(float64(label)) - 1 }
func discount(rank int) float64 { return 1.0 / math.Log2(float64(rank)+1) }

func idealDCG(labels []int) float64 {
	sorted := make([]int, len(labels))
	copy(sorted, labels)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	var dcg float64
	for pos, l := range sorted {
		dcg += gain(l) * discount(pos+1)
	}
	return dcg
}

// NDCGAt computes NDCG@k for scores against graded labels. Used by training
// diagnostics and tests.
func NDCGAt(labels []int, scores []float64, k int) float64 {
	n := len(labels)
	if n == 0 {
		return 0
	}
	if k <= 0 || k > n {
		k = n
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var dcg float64
	for pos := 0; pos < k; pos++ {
		dcg += gain(labels[order[pos]]) * discount(pos + 1)
	}

	sorted := make([]int, n)
	copy(sorted, labels)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	var idcg float64
	for pos := 0; pos < k; pos++ {
		idcg += gain(sorted[pos]) * discount(pos + 1)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// Predictor scores candidates with a loaded model.
type Predictor struct {
	model     *Model
	extractor *Extractor
}

// NewPredictor wraps a model (nil is allowed; prediction then fails with
// domain.ErrModelNotLoaded).
func NewPredictor(model *Model) *Predictor {
	return &Predictor{model: model, extractor: NewExtractor()}
}

// LoadPredictor restores a predictor from a saved model artifact.
func LoadPredictor(path string) (*Predictor, error) {
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return NewPredictor(m), nil
}

// Loaded reports whether a model is available.
func (p *Predictor) Loaded() bool { return p.model != nil }

// PredictScores returns one relevance score per feature row.
func (p *Predictor) PredictScores(features [][]float64) ([]float64, error) {
	if p.model == nil {
		return nil, fmt.Errorf("rank: predict: %w", domain.ErrModelNotLoaded)
	}
	scores := make([]float64, len(features))
	for i, row := range features {
		if len(row) != NumFeatures {
			return nil, fmt.Errorf("rank: row %d has %d features, want %d", i, len(row), NumFeatures)
		}
		scores[i] = p.model.PredictOne(row)
	}
	return scores, nil
}

// RankCandidates scores and orders candidates for a query embedding,
// returning the topK highest. The query side carries no metadata sets at
// this call site.
func (p *Predictor) RankCandidates(queryEmbedding []float32, candidates []domain.Candidate, topK int) ([]domain.Candidate, []float64, error) {
	if p.model == nil {
		return nil, nil, fmt.Errorf("rank: rank candidates: %w", domain.ErrModelNotLoaded)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	features := make([][]float64, len(candidates))
	for i, c := range candidates {
		features[i] = p.extractor.Extract(
			queryEmbedding, c.Embedding, c.Published,
			nil, c.Protocols,
			nil, c.AssetTypes,
			c.InteractionCount,
		)
	}
	scores, err := p.PredictScores(features)
	if err != nil {
		return nil, nil, err
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if topK <= 0 || topK > len(order) {
		topK = len(order)
	}
	outC := make([]domain.Candidate, topK)
	outS := make([]float64, topK)
	for i := 0; i < topK; i++ {
		outC[i] = candidates[order[i]]
		outS[i] = scores[order[i]]
	}
	return outC, outS, nil
}

// TrainFromSynthetic generates seeded synthetic data and trains on it.
func (t *Trainer) TrainFromSynthetic(nQueries, docsPerQuery int, seed int64) (*Model, error) {
	gen := NewGenerator(seed)
	features, labels, groups := gen.Generate(nQueries, docsPerQuery, DefaultSyntheticDim)
	return t.Train(features, labels, groups)
}
