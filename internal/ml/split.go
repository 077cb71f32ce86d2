package ml

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit shuffles 0..n-1 with seed and holds out testFraction of them, at least one each side.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Round(float64(n) * testFraction))
	if nTest < 1 && n > 1 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

// KFold partitions 0..n-1 into k shuffled folds of near-equal size.
func KFold(n, k int, seed int64) [][]int {
	if k > n {
		k = n
	}
	if k < 2 {
		return nil
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, idx := range perm {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds
}

// CVResult summarises k-fold cross-validated RMSE.
type CVResult struct {
	Folds    int     `json:"folds"`
	RMSEMean float64 `json:"rmse_mean"`
	RMSEStd  float64 `json:"rmse_std"`
}

// CrossValidate fits a fresh model per fold and scores it on the held-out fold.
func CrossValidate(newModel func() (Regressor, error), x [][]float64, y []float64, k int, seed int64) (CVResult, error) {
	folds := KFold(len(x), k, seed)
	if len(folds) == 0 {
		return CVResult{}, fmt.Errorf("ml: cannot cross-validate %d rows", len(x))
	}
	scores := make([]float64, 0, len(folds))
	for f, held := range folds {
		inFold := make(map[int]bool, len(held))
		for _, i := range held {
			inFold[i] = true
		}
		var trainX, testX [][]float64
		var trainY, testY []float64
		for i := range x {
			if inFold[i] {
				testX, testY = append(testX, x[i]), append(testY, y[i])
				continue
			}
			trainX, trainY = append(trainX, x[i]), append(trainY, y[i])
		}
		model, err := newModel()
		if err != nil {
			return CVResult{}, err
		}
		if err := model.Fit(trainX, trainY); err != nil {
			return CVResult{}, fmt.Errorf("ml: fold %d: %w", f, err)
		}
		scores = append(scores, Evaluate(model, testX, testY).RMSE)
	}
	mean, std := stat.PopMeanStdDev(scores, nil)
	return CVResult{Folds: len(folds), RMSEMean: mean, RMSEStd: std}, nil
}

// Metrics are regression errors on a held-out set.
type Metrics struct {
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate scores a model on (x, y).
func Evaluate(m Regressor, x [][]float64, y []float64) Metrics {
	pred := make([]float64, len(x))
	for i, row := range x {
		pred[i] = m.Predict(row)
	}
	return Score(pred, y)
}

// Score compares predictions with targets.
func Score(pred, y []float64) Metrics {
	if len(y) == 0 || len(pred) != len(y) {
		return Metrics{}
	}
	var sse, sae float64
	for i := range y {
		d := pred[i] - y[i]
		sse += d * d
		sae += math.Abs(d)
	}
	n := float64(len(y))
	out := Metrics{MSE: sse / n, MAE: sae / n}
	out.RMSE = math.Sqrt(out.MSE)

	_, variance := stat.PopMeanVariance(y, nil)
	if variance > 0 {
		out.R2 = 1 - out.MSE/variance
	}
	return out
}
