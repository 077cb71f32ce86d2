package predict

import (
	"math"

	"snapforecast/internal/domain"
	"snapforecast/internal/experience"
	"snapforecast/internal/features"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/qualitative"
)

const (
	hybridEstimateScale = 0.8
	hybridWidening      = 0.2
	contentBasedSpread  = 0.4
	conservativeScale   = 0.5
	conservativeSpread  = 0.6
	minQualityFactor    = 0.25
	maxQualityFactor    = 2.5
	referenceRewardPool = 10000
	minRewardMultiplier = 0.5
	maxRewardMultiplier = 2
	neutralSuccessScore = 5
)

// StrategyInput is what every strategy function sees.
type StrategyInput struct {
	ModelType modelstore.ModelType
	Platform  string
	Features  *features.Vector
	Campaign  domain.CampaignContext
	// Ensemble is set when a trained model produced a prediction.
	Ensemble *modelstore.Prediction
	// SuccessScore is the optimizer's 0-10 score, 0 when unavailable.
	SuccessScore float64
}

// Outcome is the numeric part of a result.
type Outcome struct {
	Estimate     float64             `json:"estimate"`
	Interval     modelstore.Interval `json:"interval"`
	PerAlgorithm map[string]float64  `json:"per_algorithm,omitempty"`
}

// StrategyFunc computes an outcome for one strategy.
type StrategyFunc func(StrategyInput) Outcome

// Strategies maps every strategy to its function.
var Strategies = map[experience.Strategy]StrategyFunc{
	experience.DataDriven:           DataDriven,
	experience.Hybrid:               Hybrid,
	experience.ContentBased:         ContentBased,
	experience.ConservativeBaseline: ConservativeBaseline,
}

// DataDriven returns the ensemble output unchanged. Without one it degrades to ConservativeBaseline.
func DataDriven(in StrategyInput) Outcome {
	if in.Ensemble == nil {
		return ConservativeBaseline(in)
	}
	return bound(in.ModelType, Outcome{
		Estimate:     in.Ensemble.Estimate,
		Interval:     in.Ensemble.Interval,
		PerAlgorithm: in.Ensemble.PerAlgorithm,
	})
}

// Hybrid scales the ensemble estimate down and widens both interval bounds outward by 20%.
func Hybrid(in StrategyInput) Outcome {
	if in.Ensemble == nil {
		return ConservativeBaseline(in)
	}
	iv := in.Ensemble.Interval
	lower := iv.Lower - hybridWidening*math.Abs(iv.Lower)
	upper := iv.Upper + hybridWidening*math.Abs(iv.Upper)
	return bound(in.ModelType, Outcome{
		Estimate:     in.Ensemble.Estimate * hybridEstimateScale,
		Interval:     modelstore.Interval{Lower: lower, Upper: upper, Std: (upper - lower) / 2},
		PerAlgorithm: in.Ensemble.PerAlgorithm,
	})
}

// ContentBased scales the platform baseline by content quality and campaign reward.
func ContentBased(in StrategyInput) Outcome {
	est := BaselinesFor(in.Platform).For(in.ModelType) * QualityFactor(in.Features) * RewardMultiplier(in.Campaign.RewardPool)
	if in.ModelType == modelstore.ROI && in.SuccessScore > 0 {
		est *= in.SuccessScore / neutralSuccessScore
	}
	return bound(in.ModelType, spread(est, contentBasedSpread))
}

// ConservativeBaseline is half the platform baseline with a ±60% interval.
func ConservativeBaseline(in StrategyInput) Outcome {
	est := BaselinesFor(in.Platform).For(in.ModelType) * conservativeScale
	return bound(in.ModelType, spread(est, conservativeSpread))
}

// QualityFactor compares qualitative scores with their neutral defaults; neutral content scores 1.
func QualityFactor(v *features.Vector) float64 {
	if v == nil {
		return 1
	}
	var sum float64
	axes := []string{"content_quality", "viral_potential", "engagement_potential"}
	for _, axis := range axes {
		neutral := qualitative.NeutralDefaults[axis]
		sum += v.GetOr(axis, neutral) / neutral
	}
	return clamp(sum/float64(len(axes)), minQualityFactor, maxQualityFactor)
}

// RewardMultiplier grows with the square root of the reward pool relative to 10k.
func RewardMultiplier(pool float64) float64 {
	if pool <= 0 {
		return 1
	}
	return clamp(math.Sqrt(pool/referenceRewardPool), minRewardMultiplier, maxRewardMultiplier)
}

func spread(est, fraction float64) Outcome {
	half := math.Abs(est) * fraction
	return Outcome{Estimate: est, Interval: modelstore.Interval{Lower: est - half, Upper: est + half, Std: half}}
}

// bound applies the target's range to the estimate and both interval ends.
func bound(t modelstore.ModelType, o Outcome) Outcome {
	lo, hi := math.Inf(-1), math.Inf(1)
	if t.NonNegative() {
		lo = 0
	}
	if t == modelstore.CategorySuccess {
		hi = 1
	}
	o.Estimate = clamp(o.Estimate, lo, hi)
	o.Interval.Lower = clamp(o.Interval.Lower, lo, hi)
	o.Interval.Upper = clamp(o.Interval.Upper, lo, hi)
	return o
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
