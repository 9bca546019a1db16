package rank

import "sort"

// Tree is a binary regression tree stored as a flat node array. Fields are
// exported for gob serialisation of model artifacts.
type Tree struct {
	Nodes []TreeNode
}

// TreeNode is either an internal split (Feature/Threshold, Left/Right child
// indices) or a leaf (Leaf true, Value set).
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Leaf      bool
	Value     float64
}

// Predict walks the tree for one feature vector.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeGrower fits a regression tree to per-row gradient/hessian pairs using
// variance-reduction splits and Newton-step leaf values.
type treeGrower struct {
	features [][]float64
	grad     []float64
	hess     []float64
	maxDepth int
	minLeaf  int

	nodes      []TreeNode
	splitGains []float64 // accumulated gain per feature, for importance
}

const hessianFloor = 1e-9

func growTree(features [][]float64, grad, hess []float64, maxDepth, minLeaf int) (Tree, []float64) {
	g := &treeGrower{
		features:   features,
		grad:       grad,
		hess:       hess,
		maxDepth:   maxDepth,
		minLeaf:    minLeaf,
		splitGains: make([]float64, NumFeatures),
	}
	rows := make([]int, len(features))
	for i := range rows {
		rows[i] = i
	}
	g.build(rows, 0)
	return Tree{Nodes: g.nodes}, g.splitGains
}

// build grows the subtree for rows and returns its node index.
func (g *treeGrower) build(rows []int, depth int) int {
	if depth >= g.maxDepth || len(rows) < 2*g.minLeaf {
		return g.leaf(rows)
	}

	feature, threshold, gain, ok := g.bestSplit(rows)
	if !ok {
		return g.leaf(rows)
	}

	var left, right []int
	for _, r := range rows {
		if g.features[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) < g.minLeaf || len(right) < g.minLeaf {
		return g.leaf(rows)
	}

	g.splitGains[feature] += gain

	// Reserve the node slot before recursing so child indices are stable.
	idx := len(g.nodes)
	g.nodes = append(g.nodes, TreeNode{Feature: feature, Threshold: threshold})
	l := g.build(left, depth+1)
	r := g.build(right, depth+1)
	g.nodes[idx].Left = l
	g.nodes[idx].Right = r
	return idx
}

func (g *treeGrower) leaf(rows []int) int {
	var sg, sh float64
	for _, r := range rows {
		sg += g.grad[r]
		sh += g.hess[r]
	}
	if sh < hessianFloor {
		sh = hessianFloor
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, TreeNode{Leaf: true, Value: sg / sh})
	return idx
}

// bestSplit scans every feature for the threshold maximising the gradient
// variance-reduction gain sum(G_l)^2/H_l + sum(G_r)^2/H_r - sum(G)^2/H.
func (g *treeGrower) bestSplit(rows []int) (feature int, threshold, gain float64, ok bool) {
	var totalG, totalH float64
	for _, r := range rows {
		totalG += g.grad[r]
		totalH += g.hess[r]
	}
	if totalH < hessianFloor {
		totalH = hessianFloor
	}
	parentScore := totalG * totalG / totalH

	bestGain := 0.0
	order := make([]int, len(rows))

	for f := 0; f < NumFeatures; f++ {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool {
			return g.features[order[a]][f] < g.features[order[b]][f]
		})

		var leftG, leftH float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			leftG += g.grad[r]
			leftH += g.hess[r]

			v, next := g.features[r][f], g.features[order[i+1]][f]
			if v == next {
				continue
			}
			if i+1 < g.minLeaf || len(order)-i-1 < g.minLeaf {
				continue
			}

			lh, rh := leftH, totalH-leftH
			if lh < hessianFloor {
				lh = hessianFloor
			}
			if rh < hessianFloor {
				rh = hessianFloor
			}
			rightG := totalG - leftG
			candidate := leftG*leftG/lh + rightG*rightG/rh - parentScore
			if candidate > bestGain {
				bestGain = candidate
				feature = f
				threshold = (v + next) / 2
				ok = true
			}
		}
	}
	return feature, threshold, bestGain, ok
}
