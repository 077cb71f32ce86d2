package modelstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"snapforecast/internal/ml"
)

// AlgorithmMetrics are held-out errors plus cross-validation for one member, or for the ensemble.
type AlgorithmMetrics struct {
	ml.Metrics
	CV *ml.CVResult `json:"cv,omitempty"`
}

// EnsembleKey is the name of the combined entry in Metadata.Metrics.
const EnsembleKey = "ensemble"

// Metadata is written next to every artifact as metadata.json.
type Metadata struct {
	Platform         string                      `json:"platform"`
	ModelType        ModelType                   `json:"model_type"`
	Version          string                      `json:"version"`
	RunID            string                      `json:"run_id,omitempty"`
	TrainedAt        time.Time                   `json:"trained_at"`
	TrainingDataSize int                         `json:"training_data_size"`
	TestSize         int                         `json:"test_size"`
	Seed             int64                       `json:"seed"`
	FeatureNames     []string                    `json:"feature_names"`
	FeatureDefaults  map[string]float64          `json:"feature_defaults,omitempty"`
	Algorithms       []string                    `json:"algorithms"`
	Metrics          map[string]AlgorithmMetrics `json:"metrics"`
}

// Ensemble is a set of fitted members sharing one scaler and feature schema.
type Ensemble struct {
	Meta    Metadata
	Scaler  ml.StandardScaler
	Members []ml.Regressor
}

// FitConfig controls FitEnsemble.
type FitConfig struct {
	Algorithms   []string
	Seed         int64
	TestFraction float64
	Folds        int
	Defaults     map[string]float64
	Now          time.Time
}

func (c FitConfig) withDefaults() FitConfig {
	if len(c.Algorithms) == 0 {
		c.Algorithms = ml.DefaultAlgorithms
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		c.TestFraction = 0.2
	}
	if c.Folds < 2 {
		c.Folds = 5
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	return c
}

// FeatureSchema returns the sorted union of feature names across rows.
func FeatureSchema(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for name := range r.Features {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FitEnsemble trains every configured algorithm on one shared split and scaler. It does not check
// minimum row counts; Store.Train does.
func FitEnsemble(platform string, t ModelType, rows []Row, cfg FitConfig) (*Ensemble, error) {
	cfg = cfg.withDefaults()
	if len(rows) < 2 {
		return nil, &InsufficientDataError{ModelType: t, Found: len(rows), Required: 2}
	}

	schema := FeatureSchema(rows)
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = align(r.Features, schema, cfg.Defaults)
		y[i] = r.Target
	}

	trainIdx, testIdx := ml.TrainTestSplit(len(rows), cfg.TestFraction, cfg.Seed)
	trainX, trainY := pick(x, y, trainIdx)
	testX, testY := pick(x, y, testIdx)

	e := &Ensemble{}
	if err := e.Scaler.Fit(trainX); err != nil {
		return nil, fmt.Errorf("modelstore: fit scaler: %w", err)
	}
	trainS := e.Scaler.Transform(trainX)
	testS := e.Scaler.Transform(testX)

	e.Meta = Metadata{
		Platform:         platform,
		ModelType:        t,
		TrainedAt:        cfg.Now.UTC(),
		TrainingDataSize: len(rows),
		TestSize:         len(testIdx),
		Seed:             cfg.Seed,
		FeatureNames:     schema,
		FeatureDefaults:  usedDefaults(schema, cfg.Defaults),
		Algorithms:       append([]string(nil), cfg.Algorithms...),
		Metrics:          make(map[string]AlgorithmMetrics, len(cfg.Algorithms)+1),
	}

	for _, name := range cfg.Algorithms {
		model, err := ml.New(name, cfg.Seed)
		if err != nil {
			return nil, err
		}
		if err := model.Fit(trainS, trainY); err != nil {
			return nil, fmt.Errorf("modelstore: fit %s: %w", name, err)
		}
		am := AlgorithmMetrics{Metrics: ml.Evaluate(model, testS, testY)}
		algName := name
		cv, err := ml.CrossValidate(func() (ml.Regressor, error) { return ml.New(algName, cfg.Seed) }, trainS, trainY, cfg.Folds, cfg.Seed)
		if err == nil {
			am.CV = &cv
		}
		e.Meta.Metrics[name] = am
		e.Members = append(e.Members, model)
	}

	preds := make([]float64, len(testS))
	for i, row := range testS {
		preds[i] = e.predictScaled(row).Estimate
	}
	e.Meta.Metrics[EnsembleKey] = AlgorithmMetrics{Metrics: ml.Score(preds, testY)}
	return e, nil
}

// Predict aligns features to the trained schema, scales them and averages the members.
// Absent features take the stored default, or 0.
func (e *Ensemble) Predict(features map[string]float64) Prediction {
	row := align(features, e.Meta.FeatureNames, e.Meta.FeatureDefaults)
	return e.predictScaled(e.Scaler.TransformRow(row))
}

// predictScaled clamps each member for bounded targets, then reports mean ± population std.
func (e *Ensemble) predictScaled(row []float64) Prediction {
	values := make([]float64, 0, len(e.Members))
	per := make(map[string]float64, len(e.Members))
	for _, m := range e.Members {
		v := e.Meta.ModelType.clampMember(m.Predict(row))
		per[m.Name()] = v
		values = append(values, v)
	}
	if len(values) == 0 {
		return Prediction{PerAlgorithm: per}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	iv := Interval{Lower: mean - std, Upper: mean + std, Std: std}
	if e.Meta.ModelType.NonNegative() && iv.Lower < 0 {
		iv.Lower = 0
	}
	if e.Meta.ModelType == CategorySuccess && iv.Upper > 1 {
		iv.Upper = 1
	}
	return Prediction{Estimate: mean, PerAlgorithm: per, Interval: iv}
}

// Contributions returns the ridge member's per-feature terms on the scaled input, or nil without one.
func (e *Ensemble) Contributions(features map[string]float64) map[string]float64 {
	for _, m := range e.Members {
		ridge, ok := m.(*ml.Ridge)
		if !ok {
			continue
		}
		row := e.Scaler.TransformRow(align(features, e.Meta.FeatureNames, e.Meta.FeatureDefaults))
		terms := ridge.Contributions(row)
		out := make(map[string]float64, len(terms))
		for i, v := range terms {
			out[e.Meta.FeatureNames[i]] = v
		}
		return out
	}
	return nil
}

type artifact struct {
	FeatureNames []string          `json:"feature_names"`
	Scaler       ml.StandardScaler `json:"scaler"`
	Members      []ml.State        `json:"members"`
}

func (e *Ensemble) marshalModel() ([]byte, error) {
	a := artifact{FeatureNames: e.Meta.FeatureNames, Scaler: e.Scaler}
	for _, m := range e.Members {
		s, err := ml.MarshalState(m)
		if err != nil {
			return nil, err
		}
		a.Members = append(a.Members, s)
	}
	return json.Marshal(a)
}

func unmarshalEnsemble(model, meta []byte) (*Ensemble, error) {
	var a artifact
	if err := json.Unmarshal(model, &a); err != nil {
		return nil, fmt.Errorf("modelstore: decode model: %w", err)
	}
	e := &Ensemble{Scaler: a.Scaler}
	if err := json.Unmarshal(meta, &e.Meta); err != nil {
		return nil, fmt.Errorf("modelstore: decode metadata: %w", err)
	}
	if len(a.FeatureNames) != len(e.Meta.FeatureNames) {
		return nil, fmt.Errorf("modelstore: model has %d features, metadata %d", len(a.FeatureNames), len(e.Meta.FeatureNames))
	}
	for _, s := range a.Members {
		m, err := ml.UnmarshalState(s)
		if err != nil {
			return nil, err
		}
		e.Members = append(e.Members, m)
	}
	return e, nil
}

func align(features map[string]float64, schema []string, defaults map[string]float64) []float64 {
	out := make([]float64, len(schema))
	for i, name := range schema {
		if v, ok := features[name]; ok {
			out[i] = v
			continue
		}
		out[i] = defaults[name]
	}
	return out
}

func usedDefaults(schema []string, defaults map[string]float64) map[string]float64 {
	if len(defaults) == 0 {
		return nil
	}
	out := make(map[string]float64)
	for _, name := range schema {
		if v, ok := defaults[name]; ok {
			out[name] = v
		}
	}
	return out
}

func pick(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	px := make([][]float64, len(idx))
	py := make([]float64, len(idx))
	for i, j := range idx {
		px[i], py[i] = x[j], y[j]
	}
	return px, py
}
