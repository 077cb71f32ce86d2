package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"snapforecast/internal/domain"
	"snapforecast/internal/experience"
	"snapforecast/internal/features"
	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/qualitative"
)

const maxFactors = 5

// SuccessScorer rates content for a category on a 0-10 scale. The content optimizer implements it.
type SuccessScorer interface {
	SuccessScore(ctx context.Context, text, category, platform string) (float64, error)
}

// Request is one prediction input.
type Request struct {
	ModelType  modelstore.ModelType    `json:"model_type"`
	Text       string                  `json:"text"`
	Handle     string                  `json:"handle,omitempty"`
	Platform   string                  `json:"platform,omitempty"`
	Campaign   *domain.CampaignContext `json:"campaign,omitempty"`
	CampaignID string                  `json:"campaign_id,omitempty"`
	ImageCount int                     `json:"image_count,omitempty"`
}

// Factor is one feature that drove the estimate.
type Factor struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution,omitempty"`
}

// Result is the answer to one prediction request. It is not persisted.
type Result struct {
	RequestID       string               `json:"request_id"`
	ModelType       modelstore.ModelType `json:"model_type"`
	Platform        string               `json:"platform"`
	Estimate        float64              `json:"estimate"`
	Interval        modelstore.Interval  `json:"interval"`
	PerAlgorithm    map[string]float64   `json:"per_algorithm,omitempty"`
	Strategy        experience.Strategy  `json:"strategy"`
	Tier            experience.Tier      `json:"tier"`
	ExperienceScore int                  `json:"experience_score"`
	Confidence      float64              `json:"confidence"`
	Factors         []Factor             `json:"factors"`
	Interpretation  string               `json:"interpretation"`
	ModelVersion    string               `json:"model_version,omitempty"`
	FallbackReason  string               `json:"fallback_reason,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// Engine runs the prediction control flow: extract, classify, pick a strategy, predict.
type Engine struct {
	Extractor       *features.Extractor
	Classifier      *experience.Classifier
	Predictors      map[modelstore.ModelType]*Predictor
	Success         SuccessScorer
	DefaultPlatform string
	Now             func() time.Time
	Logger          logging.Logger
	Metrics         *metrics.Metrics
}

// NewEngine builds an engine over one model store.
func NewEngine(extractor *features.Extractor, classifier *experience.Classifier, store *modelstore.Store, success SuccessScorer, defaultPlatform string, logger logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		Extractor:       extractor,
		Classifier:      classifier,
		Predictors:      NewPredictors(store),
		Success:         success,
		DefaultPlatform: defaultPlatform,
		Now:             time.Now,
		Logger:          logging.OrDiscard(logger),
		Metrics:         metrics.OrNop(m),
	}
}

// Predict always produces an estimate for a known model type. Missing models and failing
// collaborators lower the strategy instead of failing the request.
func (e *Engine) Predict(ctx context.Context, req Request) (*Result, error) {
	p, ok := e.Predictors[req.ModelType]
	if !ok {
		return nil, fmt.Errorf("predict: unknown model type %q", req.ModelType)
	}
	start := time.Now()
	req.Campaign = e.Extractor.ResolveCampaign(ctx, features.Request{Campaign: req.Campaign, CampaignID: req.CampaignID})
	platform := e.platform(req)

	vector := e.Extractor.Extract(ctx, features.Request{
		Text:       req.Text,
		Identity:   req.Handle,
		Platform:   platform,
		Campaign:   req.Campaign,
		ImageCount: req.ImageCount,
		At:         e.now(),
	})
	prepared := p.Prepare(vector)
	class := e.Classifier.Classify(ctx, req.Handle)

	in := StrategyInput{ModelType: p.Type, Platform: platform, Features: prepared}
	if req.Campaign != nil {
		in.Campaign = *req.Campaign
	}

	res := &Result{
		RequestID:       uuid.NewString(),
		ModelType:       p.Type,
		Platform:        platform,
		Strategy:        class.Strategy,
		Tier:            class.Tier,
		ExperienceScore: class.Score,
		Timestamp:       e.now().UTC(),
	}

	var ensemble *modelstore.Ensemble
	if class.Strategy.UsesEnsemble() {
		pred, ens, err := p.Predict(ctx, platform, prepared)
		if err != nil {
			res.Strategy = experience.ConservativeBaseline
			res.FallbackReason = fallbackReason(err)
			if !errors.Is(err, modelstore.ErrModelNotFound) {
				e.Logger.WithError(err).WithFields(logging.Fields{
					"platform":   platform,
					"model_type": p.Type,
				}).Warn("ensemble unavailable, using conservative baseline")
			}
		} else {
			in.Ensemble = &pred
			ensemble = ens
			res.ModelVersion = ens.Meta.Version
		}
	}

	if res.Strategy == experience.ContentBased && p.Type == modelstore.ROI && e.Success != nil {
		category := ""
		if req.Campaign != nil {
			category = req.Campaign.Category
		}
		score, err := e.Success.SuccessScore(ctx, req.Text, category, platform)
		if err != nil {
			e.Logger.WithError(err).Debug("success score unavailable")
		} else {
			in.SuccessScore = score
		}
	}

	out := Strategies[res.Strategy](in)
	res.Estimate = out.Estimate
	res.Interval = out.Interval
	res.PerAlgorithm = out.PerAlgorithm
	res.Confidence = res.Strategy.ConfidenceMultiplier()
	res.Factors = topFactors(prepared, ensemble)
	res.Interpretation = p.Interpret(res.Estimate)

	e.Metrics.Predictions.WithLabelValues(string(p.Type), string(res.Strategy)).Inc()
	e.Metrics.PredictionDuration.WithLabelValues(string(p.Type)).Observe(time.Since(start).Seconds())
	e.Logger.WithFields(logging.Fields{
		"request_id": res.RequestID,
		"model_type": p.Type,
		"platform":   platform,
		"strategy":   res.Strategy,
		"tier":       res.Tier,
		"estimate":   res.Estimate,
	}).Debug("prediction served")
	return res, nil
}

// Train builds a training set for one model type and fits a new ensemble version.
func (e *Engine) Train(ctx context.Context, builder *TrainingSetBuilder, platform string, t modelstore.ModelType, limit int) (*modelstore.TrainingReport, error) {
	p, ok := e.Predictors[t]
	if !ok {
		return nil, fmt.Errorf("predict: unknown model type %q", t)
	}
	if platform == "" {
		platform = e.DefaultPlatform
	}
	rows, err := builder.Build(ctx, p, platform, limit)
	if err != nil {
		return nil, err
	}
	return p.Train(ctx, platform, rows)
}

func (e *Engine) platform(req Request) string {
	switch {
	case req.Platform != "":
		return domain.NormalizePlatform(req.Platform)
	case req.Campaign != nil && req.Campaign.Platform != "":
		return domain.NormalizePlatform(req.Campaign.Platform)
	}
	return domain.NormalizePlatform(e.DefaultPlatform)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func fallbackReason(err error) string {
	if errors.Is(err, modelstore.ErrModelNotFound) {
		return "model_not_found"
	}
	return "model_unavailable"
}

// topFactors ranks ridge contributions when an ensemble ran, otherwise reports the qualitative inputs.
func topFactors(v *features.Vector, ensemble *modelstore.Ensemble) []Factor {
	if ensemble != nil {
		if contrib := ensemble.Contributions(v.Map()); len(contrib) > 0 {
			factors := make([]Factor, 0, len(contrib))
			for name, c := range contrib {
				factors = append(factors, Factor{Name: name, Value: v.GetOr(name, 0), Contribution: c})
			}
			sort.Slice(factors, func(i, j int) bool {
				ai, aj := math.Abs(factors[i].Contribution), math.Abs(factors[j].Contribution)
				if ai != aj {
					return ai > aj
				}
				return factors[i].Name < factors[j].Name
			})
			if len(factors) > maxFactors {
				factors = factors[:maxFactors]
			}
			return factors
		}
	}

	factors := make([]Factor, 0, len(qualitative.ContentAxes))
	for _, axis := range qualitative.ContentAxes {
		if val, ok := v.Get(axis.Name); ok {
			factors = append(factors, Factor{Name: axis.Name, Value: val})
		}
	}
	return factors
}
