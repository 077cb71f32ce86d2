package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearData(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		a, b := rng.Float64()*10, rng.Float64()*5
		x[i] = []float64{a, b}
		y[i] = 3 + 2*a - b
	}
	return x, y
}

func stepData(n int) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		v := float64(i) / float64(n)
		x[i] = []float64{v, float64(i % 3)}
		if v > 0.5 {
			y[i] = 10
		}
	}
	return x, y
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	x, y := linearData(40)
	m := NewLinearRegression()
	require.NoError(t, m.Fit(x, y))

	assert.InDelta(t, 2.0, m.Weights[0], 1e-5)
	assert.InDelta(t, -1.0, m.Weights[1], 1e-5)
	assert.InDelta(t, 3.0, m.Intercept, 1e-4)
	assert.InDelta(t, 3+2*4-1, m.Predict([]float64{4, 1}), 1e-4)
}

func TestRidgeShrinksWeights(t *testing.T) {
	x, y := linearData(40)
	ols := NewLinearRegression()
	require.NoError(t, ols.Fit(x, y))
	ridge := NewRidge(50)
	require.NoError(t, ridge.Fit(x, y))

	assert.Less(t, math.Abs(ridge.Weights[0]), math.Abs(ols.Weights[0]))
	contrib := ridge.Contributions([]float64{1, 2})
	assert.InDelta(t, ridge.Weights[1]*2, contrib[1], 1e-12)
}

func TestTreesFitStepFunction(t *testing.T) {
	x, y := stepData(60)
	for _, name := range []string{AlgRandomForest, AlgGradientBoosting} {
		m, err := New(name, 42)
		require.NoError(t, err)
		require.NoError(t, m.Fit(x, y))

		assert.InDelta(t, 10, m.Predict([]float64{0.9, 1}), 1.5, name)
		assert.InDelta(t, 0, m.Predict([]float64{0.1, 1}), 1.5, name)
	}

	tree := fitTree(x, y, seq(len(x)), treeParams{maxDepth: 3}, nil)
	assert.Equal(t, 10.0, tree.Predict([]float64{0.75, 0}))
	assert.Equal(t, 0.0, tree.Predict([]float64{0.25, 0}))
}

func TestRandomForestIsDeterministicPerSeed(t *testing.T) {
	x, y := stepData(50)
	a, b := NewRandomForest(42), NewRandomForest(42)
	require.NoError(t, a.Fit(x, y))
	require.NoError(t, b.Fit(x, y))
	for _, row := range x {
		assert.Equal(t, a.Predict(row), b.Predict(row))
	}
}

func TestStateRoundTrip(t *testing.T) {
	x, y := stepData(40)
	for _, name := range DefaultAlgorithms {
		m, err := New(name, 42)
		require.NoError(t, err)
		require.NoError(t, m.Fit(x, y))

		state, err := MarshalState(m)
		require.NoError(t, err)
		data, err := json.Marshal(state)
		require.NoError(t, err)

		var decoded State
		require.NoError(t, json.Unmarshal(data, &decoded))
		restored, err := UnmarshalState(decoded)
		require.NoError(t, err)

		assert.Equal(t, name, restored.Name())
		for _, row := range x[:5] {
			assert.InDelta(t, m.Predict(row), restored.Predict(row), 1e-12, name)
		}
	}

	_, err := UnmarshalState(State{Algorithm: "svm"})
	assert.Error(t, err)
	_, err = New("svm", 1)
	assert.Error(t, err)
}

func TestFitValidatesShape(t *testing.T) {
	assert.Error(t, NewRidge(1).Fit(nil, nil))
	assert.Error(t, NewRidge(1).Fit([][]float64{{1}, {2}}, []float64{1}))
	assert.Error(t, NewRidge(1).Fit([][]float64{{1}, {2, 3}}, []float64{1, 2}))
}

func TestScalerHandlesConstantColumns(t *testing.T) {
	var s StandardScaler
	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}))
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, []float64{1, 0}, s.TransformRow([]float64{3, 5}))
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(20, 0.2, 42)
	assert.Len(t, train, 16)
	assert.Len(t, test, 4)

	all := append(append([]int{}, train...), test...)
	sort.Ints(all)
	assert.Equal(t, seq(20), all)

	train2, test2 := TrainTestSplit(20, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestKFoldAndCrossValidate(t *testing.T) {
	folds := KFold(23, 5, 1)
	require.Len(t, folds, 5)
	seen := 0
	for _, f := range folds {
		assert.GreaterOrEqual(t, len(f), 4)
		seen += len(f)
	}
	assert.Equal(t, 23, seen)

	x, y := linearData(30)
	cv, err := CrossValidate(func() (Regressor, error) { return NewLinearRegression(), nil }, x, y, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, 5, cv.Folds)
	assert.Less(t, cv.RMSEMean, 1e-4)
}

func TestScoreMetrics(t *testing.T) {
	m := Score([]float64{1, 2, 3}, []float64{1, 2, 5})
	assert.InDelta(t, 4.0/3, m.MSE, 1e-12)
	assert.InDelta(t, 2.0/3, m.MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(4.0/3), m.RMSE, 1e-12)
	assert.Equal(t, Metrics{}, Score(nil, nil))
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
