package ml

import (
	"math"
	"math/rand"
)

// RandomForest is a bagged ensemble of CART trees with random feature sub-sampling.
type RandomForest struct {
	NTrees   int    `json:"n_trees"`
	MaxDepth int    `json:"max_depth"`
	MinLeaf  int    `json:"min_leaf"`
	Seed     int64  `json:"seed"`
	Trees    []Tree `json:"trees"`
}

// NewRandomForest uses 50 trees of depth 8.
func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{NTrees: 50, MaxDepth: 8, MinLeaf: 1, Seed: seed}
}

// Name implements Regressor.
func (m *RandomForest) Name() string { return AlgRandomForest }

// Fit implements Regressor. Each tree sees a bootstrap sample and sqrt(features) candidates per split.
func (m *RandomForest) Fit(x [][]float64, y []float64) error {
	if err := validate(x, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(m.Seed))
	n := len(x)
	maxFeatures := int(math.Sqrt(float64(len(x[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}
	params := treeParams{maxDepth: m.MaxDepth, minLeaf: m.MinLeaf, maxFeatures: maxFeatures}

	m.Trees = make([]Tree, 0, m.NTrees)
	for t := 0; t < m.NTrees; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		m.Trees = append(m.Trees, fitTree(x, y, sample, params, rng))
	}
	return nil
}

// Predict implements Regressor.
func (m *RandomForest) Predict(x []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}
	var sum float64
	for _, t := range m.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(m.Trees))
}

// GradientBoosting fits shallow trees to residuals of a squared-error loss.
type GradientBoosting struct {
	Stages       int     `json:"stages"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Init         float64 `json:"init"`
	Trees        []Tree  `json:"trees"`
}

// NewGradientBoosting uses 100 stages of depth-3 trees and a 0.1 learning rate.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{Stages: 100, MaxDepth: 3, LearningRate: 0.1}
}

// Name implements Regressor.
func (m *GradientBoosting) Name() string { return AlgGradientBoosting }

// Fit implements Regressor.
func (m *GradientBoosting) Fit(x [][]float64, y []float64) error {
	if err := validate(x, y); err != nil {
		return err
	}
	n := len(x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	m.Init = meanAt(y, idx)

	pred := make([]float64, n)
	residual := make([]float64, n)
	for i := range pred {
		pred[i] = m.Init
	}
	params := treeParams{maxDepth: m.MaxDepth, minLeaf: 1}

	m.Trees = make([]Tree, 0, m.Stages)
	for s := 0; s < m.Stages; s++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(x, residual, idx, params, nil)
		for i := range pred {
			pred[i] += m.LearningRate * tree.Predict(x[i])
		}
		m.Trees = append(m.Trees, tree)
	}
	return nil
}

// Predict implements Regressor.
func (m *GradientBoosting) Predict(x []float64) float64 {
	out := m.Init
	for _, t := range m.Trees {
		out += m.LearningRate * t.Predict(x)
	}
	return out
}
