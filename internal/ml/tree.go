package ml

import (
	"math/rand"
	"sort"
)

// TreeNode is one node of a regression tree. Leaves carry only Value.
type TreeNode struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

// Tree is a CART regression tree stored as a flat node slice rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

type treeParams struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int // 0 means every feature
}

func fitTree(x [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) Tree {
	var t Tree
	if p.minLeaf < 1 {
		p.minLeaf = 1
	}
	t.grow(x, y, idx, 0, p, rng)
	return t
}

func (t *Tree) grow(x [][]float64, y []float64, idx []int, depth int, p treeParams, rng *rand.Rand) int {
	id := len(t.Nodes)
	value := meanAt(y, idx)
	t.Nodes = append(t.Nodes, TreeNode{Value: value, Leaf: true})
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return id
	}

	feature, threshold, ok := bestSplit(x, y, idx, p, rng)
	if !ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}

	l := t.grow(x, y, left, depth+1, p, rng)
	r := t.grow(x, y, right, depth+1, p, rng)
	t.Nodes[id] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: value}
	return id
}

// bestSplit maximises sum²/n over both children, which is the same as minimising squared error.
func bestSplit(x [][]float64, y []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, bool) {
	width := len(x[idx[0]])
	candidates := make([]int, width)
	for i := range candidates {
		candidates[i] = i
	}
	if p.maxFeatures > 0 && p.maxFeatures < width && rng != nil {
		rng.Shuffle(width, func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
		candidates = candidates[:p.maxFeatures]
	}

	var total float64
	for _, i := range idx {
		total += y[i]
	}
	n := float64(len(idx))
	bestScore := total * total / n
	const eps = 1e-12

	bestFeature, bestThreshold, found := -1, 0.0, false
	order := make([]int, len(idx))
	for _, f := range candidates {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		var leftSum float64
		for j := 0; j < len(order)-1; j++ {
			leftSum += y[order[j]]
			cur, next := x[order[j]][f], x[order[j+1]][f]
			if cur == next {
				continue
			}
			leftN := j + 1
			rightN := len(order) - leftN
			if leftN < p.minLeaf || rightN < p.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(leftN) + rightSum*rightSum/float64(rightN)
			if score > bestScore+eps {
				bestScore = score
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

// Predict walks the tree.
func (t Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := t.Nodes[0]
	for !n.Leaf {
		next := n.Right
		if n.Feature < len(x) && x[n.Feature] <= n.Threshold {
			next = n.Left
		}
		if next <= 0 || next >= len(t.Nodes) {
			break
		}
		n = t.Nodes[next]
	}
	return n.Value
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}
