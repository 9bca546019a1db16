package rank

import (
	"math/rand"
	"time"
)

// DefaultSyntheticDim is the embedding dimension used for synthetic
// training data. Small on purpose; the similarity feature only needs a
// direction, not a production-sized vector.
const DefaultSyntheticDim = 8

var (
	syntheticProtocols  = []string{"modbus", "dnp3", "opc-ua", "ethernet-ip", "profinet"}
	syntheticAssetTypes = []string{"plc", "rtu", "hmi", "scada", "dcs"}
)

// Generator produces seeded synthetic query-document pairs with graded
// relevance labels. Documents fall into three tiers keyed off a relevance
// draw: high-tier documents are near the query embedding, share its
// protocol and asset sets, and are recent and popular; low-tier documents
// are random, stale and rarely touched.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a Generator with a fixed seed for reproducible runs.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns feature rows, relevance labels 0..4 and per-query group
// sizes for nQueries queries of docsPerQuery candidates each.
func (g *Generator) Generate(nQueries, docsPerQuery, embeddingDim int) ([][]float64, []int, []int) {
	features := make([][]float64, 0, nQueries*docsPerQuery)
	labels := make([]int, 0, nQueries*docsPerQuery)
	groups := make([]int, 0, nQueries)

	// Publication ages are relative to a single reference instant and the
	// extractor shares that instant, so two runs with equal seeds produce
	// identical rows.
	now := time.Now().UTC()
	extractor := NewExtractorAt(func() time.Time { return now })

	for q := 0; q < nQueries; q++ {
		queryEmb := g.randomVector(embeddingDim)
		queryProtocols := g.sample(syntheticProtocols, 1+g.rng.Intn(3))
		queryAssets := g.sample(syntheticAssetTypes, 1+g.rng.Intn(3))

		for d := 0; d < docsPerQuery; d++ {
			var (
				docEmb       []float32
				docProtocols []string
				docAssets    []string
				daysAgo      int
				interactions int
				label        int
			)
			switch signal := g.rng.Float64(); {
			case signal > 0.7:
				docEmb = g.perturb(queryEmb, 0.2)
				docProtocols = union(queryProtocols, g.sample(syntheticProtocols, 1))
				docAssets = queryAssets
				daysAgo = g.rng.Intn(61)
				interactions = 10 + g.rng.Intn(91)
				label = 3 + g.rng.Intn(2)
			case signal > 0.4:
				docEmb = g.perturb(queryEmb, 0.5)
				docProtocols = g.sample(syntheticProtocols, 2)
				docAssets = g.sample(syntheticAssetTypes, 2)
				daysAgo = 30 + g.rng.Intn(336)
				interactions = 1 + g.rng.Intn(30)
				label = 1 + g.rng.Intn(2)
			default:
				docEmb = g.randomVector(embeddingDim)
				docProtocols = g.sample(syntheticProtocols, 1)
				docAssets = g.sample(syntheticAssetTypes, 1)
				daysAgo = 180 + g.rng.Intn(821)
				interactions = g.rng.Intn(6)
				label = 0
			}

			published := now.AddDate(0, 0, -daysAgo)
			features = append(features, extractor.Extract(
				queryEmb, docEmb, published,
				queryProtocols, docProtocols,
				queryAssets, docAssets,
				interactions,
			))
			labels = append(labels, label)
		}
		groups = append(groups, docsPerQuery)
	}
	return features, labels, groups
}

func (g *Generator) randomVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = g.rng.Float32()
	}
	return v
}

// perturb adds scaled gaussian noise to a base embedding.
func (g *Generator) perturb(base []float32, scale float64) []float32 {
	out := make([]float32, len(base))
	for i, x := range base {
		out[i] = x + float32(g.rng.NormFloat64()*0.3*scale)
	}
	return out
}

// sample draws k distinct elements from pool.
func (g *Generator) sample(pool []string, k int) []string {
	if k > len(pool) {
		k = len(pool)
	}
	perm := g.rng.Perm(len(pool))
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
