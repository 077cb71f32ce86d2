package features

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"snapforecast/internal/domain"
	"snapforecast/internal/qualitative"
)

const (
	// HistoryLimit is the number of most recent snapshots aggregated per author.
	HistoryLimit = 5
	// ConsistencyRank is the rank at or above which a snapshot counts as consistent.
	ConsistencyRank = 50
	tweetLimit      = 5
)

// historyFeatures aggregates up to HistoryLimit of the most recent snapshots.
func historyFeatures(snaps []domain.Snapshot) *Vector {
	v := NewVector()
	if len(snaps) == 0 {
		return v
	}

	recent := make([]domain.Snapshot, len(snaps))
	copy(recent, snaps)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].TakenAt.After(recent[j].TakenAt) })
	if len(recent) > HistoryLimit {
		recent = recent[:HistoryLimit]
	}
	latest := recent[0]

	var ranks, scores, deltas []float64
	consistent := 0
	for _, s := range recent {
		scores = append(scores, s.Score)
		deltas = append(deltas, s.ScoreDelta)
		if s.Rank > 0 {
			ranks = append(ranks, float64(s.Rank))
			if s.Rank <= ConsistencyRank {
				consistent++
			}
		}
	}

	v.Set("hist_snapshot_count", float64(len(recent)))
	if len(ranks) > 0 {
		mean, std := stat.PopMeanStdDev(ranks, nil)
		v.Set("hist_avg_rank", mean)
		v.Set("hist_best_rank", floats.Min(ranks))
		v.Set("hist_rank_std", std)
	}
	v.Set("hist_avg_score", stat.Mean(scores, nil))
	v.Set("hist_avg_score_delta", stat.Mean(deltas, nil))
	v.Set("hist_growth_rate", growthRate(recent))
	v.Set("hist_consistency", float64(consistent)/float64(len(recent)))

	if items, err := Flatten("hist_llm", latest.Analysis); err == nil {
		for _, item := range items {
			if item.Kind == Numeric {
				v.Set(item.Name, qualitative.Clamp(item.Value))
			}
		}
	}

	tweetFeatures(latest.Tweets, v)
	return v
}

// growthRate is (newest - oldest) / oldest over recent, which is sorted newest first.
func growthRate(recent []domain.Snapshot) float64 {
	if len(recent) < 2 {
		return 0
	}
	first := recent[len(recent)-1].Score
	last := recent[0].Score
	if first == 0 {
		return 0
	}
	return (last - first) / first
}

func tweetFeatures(tweets []domain.Tweet, v *Vector) {
	if len(tweets) == 0 {
		return
	}
	sorted := make([]domain.Tweet, len(tweets))
	copy(sorted, tweets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PostedAt.After(sorted[j].PostedAt) })
	if len(sorted) > tweetLimit {
		sorted = sorted[:tweetLimit]
	}
	engagement := make([]float64, len(sorted))
	for i, tw := range sorted {
		engagement[i] = tw.Engagement()
	}
	mean, variance := stat.PopMeanVariance(engagement, nil)
	v.Set("hist_tweet_engagement_mean", mean)
	v.Set("hist_tweet_engagement_max", floats.Max(engagement))
	v.Set("hist_tweet_engagement_var", variance)
	v.Set("hist_tweet_count", float64(len(sorted)))
}
