package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"snapforecast/internal/domain"
	"snapforecast/internal/experience"
	"snapforecast/internal/features"
	"snapforecast/internal/modelstore"
	"snapforecast/internal/qualitative"
)

func neutralVector() *features.Vector {
	return features.FromMap(qualitative.NeutralDefaults)
}

func TestConservativeBaselineIsHalfTheBaseline(t *testing.T) {
	out := ConservativeBaseline(StrategyInput{ModelType: modelstore.SnapDelta, Platform: "cookie.fun"})
	assert.InDelta(t, 60, out.Estimate, 1e-9)
	assert.InDelta(t, 24, out.Interval.Lower, 1e-9)
	assert.InDelta(t, 96, out.Interval.Upper, 1e-9)

	out = ConservativeBaseline(StrategyInput{ModelType: modelstore.SnapDelta, Platform: "somewhere-else"})
	assert.InDelta(t, 40, out.Estimate, 1e-9)
}

func TestContentBasedNeutralContentMatchesBaseline(t *testing.T) {
	out := ContentBased(StrategyInput{ModelType: modelstore.SnapDelta, Platform: "cookie.fun", Features: neutralVector()})
	assert.InDelta(t, 120, out.Estimate, 1e-9)
	assert.InDelta(t, 72, out.Interval.Lower, 1e-9)
	assert.InDelta(t, 168, out.Interval.Upper, 1e-9)
}

func TestContentBasedScalesWithReward(t *testing.T) {
	in := StrategyInput{ModelType: modelstore.SnapDelta, Platform: "cookie.fun", Features: neutralVector()}

	in.Campaign = domain.CampaignContext{RewardPool: 40000}
	assert.InDelta(t, 240, ContentBased(in).Estimate, 1e-9)

	in.Campaign = domain.CampaignContext{RewardPool: 100}
	assert.InDelta(t, 60, ContentBased(in).Estimate, 1e-9)
}

func TestRewardMultiplierBounds(t *testing.T) {
	assert.Equal(t, 1.0, RewardMultiplier(0))
	assert.Equal(t, 1.0, RewardMultiplier(-5))
	assert.Equal(t, 0.5, RewardMultiplier(1))
	assert.InDelta(t, 1.0, RewardMultiplier(10000), 1e-9)
	assert.Equal(t, 2.0, RewardMultiplier(1e9))
}

func TestQualityFactorClamps(t *testing.T) {
	assert.InDelta(t, 1.0, QualityFactor(neutralVector()), 1e-9)
	assert.InDelta(t, 1.0, QualityFactor(nil), 1e-9)

	high := features.FromMap(map[string]float64{"content_quality": 10, "viral_potential": 10, "engagement_potential": 10})
	assert.Equal(t, maxQualityFactor, QualityFactor(high))

	low := features.FromMap(map[string]float64{"content_quality": 0, "viral_potential": 0, "engagement_potential": 0})
	assert.Equal(t, minQualityFactor, QualityFactor(low))
}

func TestContentBasedROIUsesSuccessScore(t *testing.T) {
	in := StrategyInput{ModelType: modelstore.ROI, Platform: "cookie.fun", Features: neutralVector()}
	assert.InDelta(t, 1.2, ContentBased(in).Estimate, 1e-9)

	in.SuccessScore = 10
	assert.InDelta(t, 2.4, ContentBased(in).Estimate, 1e-9)
}

func TestHybridShrinksEstimateAndWidensInterval(t *testing.T) {
	in := StrategyInput{
		ModelType: modelstore.PositionChange,
		Ensemble: &modelstore.Prediction{
			Estimate:     100,
			Interval:     modelstore.Interval{Lower: 80, Upper: 120, Std: 20},
			PerAlgorithm: map[string]float64{"ridge": 100},
		},
	}
	out := Hybrid(in)
	assert.InDelta(t, 80, out.Estimate, 1e-9)
	assert.InDelta(t, 64, out.Interval.Lower, 1e-9)
	assert.InDelta(t, 144, out.Interval.Upper, 1e-9)
	assert.Equal(t, in.Ensemble.PerAlgorithm, out.PerAlgorithm)

	direct := DataDriven(in)
	assert.Equal(t, 100.0, direct.Estimate)
	assert.Equal(t, in.Ensemble.Interval, direct.Interval)
}

func TestEnsembleStrategiesWithoutModelUseBaseline(t *testing.T) {
	in := StrategyInput{ModelType: modelstore.SnapDelta, Platform: "cookie.fun"}
	assert.Equal(t, ConservativeBaseline(in), DataDriven(in))
	assert.Equal(t, ConservativeBaseline(in), Hybrid(in))
}

func TestOutcomesRespectTargetRange(t *testing.T) {
	snap := Hybrid(StrategyInput{
		ModelType: modelstore.SnapDelta,
		Ensemble:  &modelstore.Prediction{Estimate: 5, Interval: modelstore.Interval{Lower: -10, Upper: 20}},
	})
	assert.Equal(t, 0.0, snap.Interval.Lower)
	assert.GreaterOrEqual(t, snap.Estimate, 0.0)

	high := features.FromMap(map[string]float64{"content_quality": 10, "viral_potential": 10, "engagement_potential": 10})
	for _, s := range experience.Strategies() {
		out := Strategies[s](StrategyInput{
			ModelType: modelstore.CategorySuccess,
			Platform:  "cookie.fun",
			Features:  high,
			Campaign:  domain.CampaignContext{RewardPool: 1e6},
		})
		assert.GreaterOrEqual(t, out.Interval.Lower, 0.0, s)
		assert.LessOrEqual(t, out.Interval.Upper, 1.0, s)
		assert.LessOrEqual(t, out.Estimate, 1.0, s)
	}

	position := ConservativeBaseline(StrategyInput{ModelType: modelstore.PositionChange})
	assert.InDelta(t, 0.5, position.Estimate, 1e-9)
}

func TestEveryStrategyHasAFunction(t *testing.T) {
	for _, s := range experience.Strategies() {
		assert.Contains(t, Strategies, s)
	}
}
