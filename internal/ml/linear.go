package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// linearModel is y = Intercept + Weights·x.
type linearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (m *linearModel) predict(x []float64) float64 {
	out := m.Intercept
	for i, w := range m.Weights {
		if i < len(x) {
			out += w * x[i]
		}
	}
	return out
}

// Contributions returns Weights[i]·x[i] per feature.
func (m *linearModel) contributions(x []float64) []float64 {
	out := make([]float64, len(m.Weights))
	for i, w := range m.Weights {
		if i < len(x) {
			out[i] = w * x[i]
		}
	}
	return out
}

// fit solves (XcᵀXc + λI) w = Xcᵀ(y - ȳ) on column-centred X, so the intercept is never penalised.
func (m *linearModel) fit(x [][]float64, y []float64, lambda float64) error {
	if err := validate(x, y); err != nil {
		return err
	}
	n, p := len(x), len(x[0])
	yMean := stat.Mean(y, nil)
	if p == 0 {
		m.Weights, m.Intercept = nil, yMean
		return nil
	}

	means := make([]float64, p)
	for _, row := range x {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	data := make([]float64, 0, n*p)
	yc := make([]float64, n)
	for i, row := range x {
		for j, v := range row {
			data = append(data, v-means[j])
		}
		yc[i] = y[i] - yMean
	}
	xc := mat.NewDense(n, p, data)

	var xtx mat.Dense
	xtx.Mul(xc.T(), xc)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), mat.NewVecDense(n, yc))

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("ml: solve normal equations: %w", err)
		}
	}

	m.Weights = make([]float64, p)
	m.Intercept = yMean
	for j := 0; j < p; j++ {
		wj := w.AtVec(j)
		if math.IsNaN(wj) || math.IsInf(wj, 0) {
			wj = 0
		}
		m.Weights[j] = wj
		m.Intercept -= wj * means[j]
	}
	return nil
}

// LinearRegression is ordinary least squares with a tiny diagonal jitter for rank-deficient inputs.
type LinearRegression struct {
	linearModel
	Jitter float64 `json:"jitter"`
}

// NewLinearRegression returns an unfitted model.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{Jitter: 1e-8}
}

// Name implements Regressor.
func (m *LinearRegression) Name() string { return AlgLinear }

// Fit implements Regressor.
func (m *LinearRegression) Fit(x [][]float64, y []float64) error { return m.fit(x, y, m.Jitter) }

// Predict implements Regressor.
func (m *LinearRegression) Predict(x []float64) float64 { return m.predict(x) }

// Ridge is L2-penalised least squares.
type Ridge struct {
	linearModel
	Lambda float64 `json:"lambda"`
}

// NewRidge returns an unfitted model with penalty lambda.
func NewRidge(lambda float64) *Ridge {
	return &Ridge{Lambda: lambda}
}

// Name implements Regressor.
func (m *Ridge) Name() string { return AlgRidge }

// Fit implements Regressor.
func (m *Ridge) Fit(x [][]float64, y []float64) error { return m.fit(x, y, m.Lambda) }

// Predict implements Regressor.
func (m *Ridge) Predict(x []float64) float64 { return m.predict(x) }

// Contributions returns the per-feature terms of the prediction on scaled input x.
func (m *Ridge) Contributions(x []float64) []float64 { return m.contributions(x) }
