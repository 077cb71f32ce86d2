// Package predict turns extracted features and an experience classification into metric forecasts.
package predict

import (
	"context"
	"fmt"
	"math"

	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/qualitative"
)

// Baselines are platform-wide expectations used when no trained ensemble applies.
type Baselines struct {
	SnapDelta       float64 `json:"snap_delta"`
	PositionChange  float64 `json:"position_change"`
	ROI             float64 `json:"roi"`
	CategorySuccess float64 `json:"category_success"`
}

var (
	defaultBaselines  = Baselines{SnapDelta: 80, PositionChange: 1, ROI: 1.0, CategorySuccess: 0.25}
	platformBaselines = map[string]Baselines{
		"cookie.fun": {SnapDelta: 120, PositionChange: 2, ROI: 1.2, CategorySuccess: 0.35},
	}
)

// BaselinesFor returns the baselines of platform, or the defaults.
func BaselinesFor(platform string) Baselines {
	if b, ok := platformBaselines[domain.NormalizePlatform(platform)]; ok {
		return b
	}
	return defaultBaselines
}

// For returns the baseline of one model type.
func (b Baselines) For(t modelstore.ModelType) float64 {
	switch t {
	case modelstore.SnapDelta:
		return b.SnapDelta
	case modelstore.PositionChange:
		return b.PositionChange
	case modelstore.ROI:
		return b.ROI
	default:
		return b.CategorySuccess
	}
}

// Predictor is a metric-specific wrapper around the model store.
type Predictor struct {
	Type   modelstore.ModelType
	store  *modelstore.Store
	derive func(v *features.Vector)
	target func(rec domain.PerformanceRecord) float64
}

// NewPredictors builds one predictor per model type over a shared store.
func NewPredictors(store *modelstore.Store) map[modelstore.ModelType]*Predictor {
	return map[modelstore.ModelType]*Predictor{
		modelstore.SnapDelta: {
			Type:   modelstore.SnapDelta,
			store:  store,
			derive: deriveEngagementQuality,
			target: func(r domain.PerformanceRecord) float64 { return r.SnapDelta },
		},
		modelstore.PositionChange: {
			Type:   modelstore.PositionChange,
			store:  store,
			derive: deriveRankMomentum,
			target: func(r domain.PerformanceRecord) float64 { return r.PositionDelta },
		},
		modelstore.ROI: {
			Type:   modelstore.ROI,
			store:  store,
			derive: deriveRewardPerCompetitor,
			target: func(r domain.PerformanceRecord) float64 { return r.ROI },
		},
		modelstore.CategorySuccess: {
			Type:   modelstore.CategorySuccess,
			store:  store,
			derive: deriveCategoryFit,
			target: func(r domain.PerformanceRecord) float64 {
				if r.Success {
					return 1
				}
				return 0
			},
		},
	}
}

// MinRows is the training threshold of the target.
func (p *Predictor) MinRows() int { return p.Type.MinRows() }

// Prepare returns a copy of v with the metric's derived features added.
func (p *Predictor) Prepare(v *features.Vector) *features.Vector {
	out := v.Clone()
	if p.derive != nil {
		p.derive(out)
	}
	return out
}

// Defaults fill features a request lacks, both in training rows and at prediction time.
func (p *Predictor) Defaults() map[string]float64 {
	d := make(map[string]float64, len(qualitative.NeutralDefaults)+1)
	for k, v := range qualitative.NeutralDefaults {
		d[k] = v
	}
	if p.Type == modelstore.ROI {
		d["campaign_competition_level"] = 1
	}
	return d
}

// Target extracts the training label from a performance record.
func (p *Predictor) Target(rec domain.PerformanceRecord) float64 { return p.target(rec) }

// Row builds a training row from an already extracted vector.
func (p *Predictor) Row(v *features.Vector, rec domain.PerformanceRecord) modelstore.Row {
	return modelstore.Row{Features: p.Prepare(v).Map(), Target: p.Target(rec)}
}

// Train fits a new ensemble version for platform.
func (p *Predictor) Train(ctx context.Context, platform string, rows []modelstore.Row) (*modelstore.TrainingReport, error) {
	return p.store.Train(ctx, platform, p.Type, rows, modelstore.WithFeatureDefaults(p.Defaults()))
}

// Predict runs the latest ensemble on prepared features.
func (p *Predictor) Predict(ctx context.Context, platform string, prepared *features.Vector) (modelstore.Prediction, *modelstore.Ensemble, error) {
	return p.store.Predict(ctx, platform, p.Type, prepared.Map())
}

// Interpret describes an estimate in the metric's own terms.
func (p *Predictor) Interpret(estimate float64) string {
	switch p.Type {
	case modelstore.SnapDelta:
		return fmt.Sprintf("expected gain of %.0f SNAP", estimate)
	case modelstore.PositionChange:
		switch {
		case estimate >= 0.5:
			return fmt.Sprintf("expected to climb %.0f leaderboard positions", estimate)
		case estimate <= -0.5:
			return fmt.Sprintf("expected to drop %.0f leaderboard positions", -estimate)
		}
		return "leaderboard position expected to hold"
	case modelstore.ROI:
		return fmt.Sprintf("expected return of %.2fx the effort invested", estimate)
	default:
		return fmt.Sprintf("%.0f%% chance of succeeding in its category", estimate*100)
	}
}

func deriveEngagementQuality(v *features.Vector) {
	quality := v.GetOr("content_quality", qualitative.NeutralDefaults["content_quality"])
	engagement := v.GetOr("engagement_potential", qualitative.NeutralDefaults["engagement_potential"])
	v.Set("engagement_x_quality", engagement*quality/10)
}

func deriveRankMomentum(v *features.Vector) {
	v.Set("rank_momentum", v.GetOr("hist_growth_rate", 0)*v.GetOr("hist_consistency", 0))
}

func deriveRewardPerCompetitor(v *features.Vector) {
	v.Set("reward_per_competitor", v.GetOr("campaign_reward_pool", 0)/(1+math.Max(0, v.GetOr("campaign_competition_level", 0))))
}

func deriveCategoryFit(v *features.Vector) {
	quality := v.GetOr("content_quality", qualitative.NeutralDefaults["content_quality"]) / 10
	keywords := math.Min(1, v.GetOr("crypto_keyword_count", 0)/3)
	v.Set("category_fit", (quality+keywords)/2)
}
