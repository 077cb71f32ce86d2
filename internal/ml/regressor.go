// Package ml holds the small regression algorithms the ensembles are built from.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Algorithm names.
const (
	AlgRandomForest     = "random_forest"
	AlgGradientBoosting = "gradient_boosting"
	AlgLinear           = "linear_regression"
	AlgRidge            = "ridge"
)

// DefaultAlgorithms is the ensemble membership used for every model type.
var DefaultAlgorithms = []string{AlgRandomForest, AlgGradientBoosting, AlgLinear, AlgRidge}

// ErrNotFitted is returned when a model is used before Fit.
var ErrNotFitted = errors.New("ml: model not fitted")

// Regressor is a fitted or fittable single-output regression model. Inputs are already scaled.
type Regressor interface {
	Name() string
	Fit(x [][]float64, y []float64) error
	Predict(x []float64) float64
}

// New returns an unfitted regressor with default hyper-parameters.
func New(name string, seed int64) (Regressor, error) {
	switch name {
	case AlgRandomForest:
		return NewRandomForest(seed), nil
	case AlgGradientBoosting:
		return NewGradientBoosting(), nil
	case AlgLinear:
		return NewLinearRegression(), nil
	case AlgRidge:
		return NewRidge(1.0), nil
	default:
		return nil, fmt.Errorf("ml: unknown algorithm %q", name)
	}
}

// State is the serialised form of a fitted regressor.
type State struct {
	Algorithm string          `json:"algorithm"`
	Params    json.RawMessage `json:"params"`
}

// MarshalState serialises a fitted regressor.
func MarshalState(r Regressor) (State, error) {
	params, err := json.Marshal(r)
	if err != nil {
		return State{}, fmt.Errorf("ml: marshal %s: %w", r.Name(), err)
	}
	return State{Algorithm: r.Name(), Params: params}, nil
}

// UnmarshalState restores a regressor saved by MarshalState.
func UnmarshalState(s State) (Regressor, error) {
	var r Regressor
	switch s.Algorithm {
	case AlgRandomForest:
		r = &RandomForest{}
	case AlgGradientBoosting:
		r = &GradientBoosting{}
	case AlgLinear:
		r = &LinearRegression{}
	case AlgRidge:
		r = &Ridge{}
	default:
		return nil, fmt.Errorf("ml: unknown algorithm %q", s.Algorithm)
	}
	if err := json.Unmarshal(s.Params, r); err != nil {
		return nil, fmt.Errorf("ml: unmarshal %s: %w", s.Algorithm, err)
	}
	return r, nil
}

func validate(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return errors.New("ml: empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("ml: %d rows but %d targets", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("ml: row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}
