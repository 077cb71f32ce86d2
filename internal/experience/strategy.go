package experience

import "fmt"

// Strategy selects how a prediction is produced. The set is closed.
type Strategy string

const (
	// DataDriven uses the trained ensemble as is.
	DataDriven Strategy = "data_driven"
	// Hybrid uses the ensemble with a reduced estimate and a widened interval.
	Hybrid Strategy = "hybrid"
	// ContentBased skips the ensemble and scales a platform baseline by content quality.
	ContentBased Strategy = "content_based"
	// ConservativeBaseline is half the platform baseline with a wide interval.
	ConservativeBaseline Strategy = "conservative_baseline"
)

// Strategies lists every strategy from most to least evidence.
func Strategies() []Strategy {
	return []Strategy{DataDriven, Hybrid, ContentBased, ConservativeBaseline}
}

// ConfidenceMultiplier shrinks as the evidence behind the strategy shrinks.
func (s Strategy) ConfidenceMultiplier() float64 {
	switch s {
	case DataDriven:
		return 1.0
	case Hybrid:
		return 0.8
	case ContentBased:
		return 0.6
	default:
		return 0.5
	}
}

// UsesEnsemble reports whether the strategy needs a trained model.
func (s Strategy) UsesEnsemble() bool {
	return s == DataDriven || s == Hybrid
}

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range Strategies() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("experience: unknown strategy %q", name)
}

// Tier is a coarse bucket of how much reliable history exists for an author.
type Tier string

const (
	TierExpert       Tier = "expert"
	TierIntermediate Tier = "intermediate"
	TierBeginner     Tier = "beginner"
	TierNovice       Tier = "novice"
	TierUnknown      Tier = "unknown"
)

// TierFor buckets an experience score.
func TierFor(score int) Tier {
	switch {
	case score >= 12:
		return TierExpert
	case score >= 8:
		return TierIntermediate
	case score >= 4:
		return TierBeginner
	default:
		return TierNovice
	}
}

// StrategyFor maps a tier and leaderboard presence onto a strategy.
func StrategyFor(tier Tier, onLeaderboard bool) Strategy {
	if tier == TierUnknown {
		return ConservativeBaseline
	}
	if !onLeaderboard {
		return ContentBased
	}
	switch tier {
	case TierExpert, TierIntermediate:
		return DataDriven
	case TierBeginner:
		return Hybrid
	default:
		// Presence alone scores 5, so a novice on a leaderboard is unreachable through Score.
		return ContentBased
	}
}
