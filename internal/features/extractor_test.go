package features

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapforecast/internal/domain"
	"snapforecast/internal/metrics"
	"snapforecast/internal/qualitative"
)

type fakeHistory struct {
	snapshots  []domain.Snapshot
	profile    domain.AuthorProfile
	snapErr    error
	profileErr error
	lastLimit  int
	lastAsOf   time.Time
}

func (f *fakeHistory) RecentSnapshots(_ context.Context, _, _ string, asOf time.Time, limit int) ([]domain.Snapshot, error) {
	f.lastLimit = limit
	f.lastAsOf = asOf
	var out []domain.Snapshot
	for _, s := range f.snapshots {
		if !s.TakenAt.After(asOf) {
			out = append(out, s)
		}
	}
	return out, f.snapErr
}

type fakeCampaigns map[string]domain.CampaignContext

func (f fakeCampaigns) Campaign(_ context.Context, id string) (domain.CampaignContext, error) {
	c, ok := f[id]
	if !ok {
		return domain.CampaignContext{}, errors.New("campaign not found")
	}
	return c, nil
}

func (f *fakeHistory) AuthorProfile(_ context.Context, _ string) (domain.AuthorProfile, error) {
	return f.profile, f.profileErr
}

// rawScorer returns its values untouched, including out-of-range ones.
type rawScorer struct{ values qualitative.Scores }

func (r rawScorer) Score(context.Context, string, []qualitative.Axis) (qualitative.Scores, error) {
	return r.values.Clone(), nil
}

var fixedNow = time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC) // Saturday

func newTestExtractor(scorer qualitative.Scorer, history HistorySource) (*Extractor, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	e := NewExtractor(scorer, history, nil, m)
	e.Now = func() time.Time { return fixedNow }
	return e, m
}

func TestExtractKeywordAndEmojiScenario(t *testing.T) {
	e, _ := newTestExtractor(nil, nil)
	v := e.Extract(context.Background(), Request{Text: "gm gm, $TICKER to the moon 🚀🚀"})

	assert.GreaterOrEqual(t, v.GetOr("crypto_keyword_count", 0), 1.0)
	assert.GreaterOrEqual(t, v.GetOr("trading_keyword_count", 0), 1.0)
	assert.Equal(t, 2.0, v.GetOr("emoji_count", -1))
	assert.Equal(t, 1.0, v.GetOr("cashtag_count", -1))
}

func TestExtractShortTextUsesNeutralDefaults(t *testing.T) {
	scorer := &qualitative.StaticScorer{Values: qualitative.Scores{"content_quality": 9, "viral_potential": 9}}
	e, m := newTestExtractor(scorer, nil)

	v := e.Extract(context.Background(), Request{Text: "gm frens"})

	assert.Equal(t, 5.0, v.GetOr("content_quality", -1))
	assert.Equal(t, 3.0, v.GetOr("viral_potential", -1))
	assert.Equal(t, 4.0, v.GetOr("engagement_potential", -1))
	assert.False(t, v.Has("originality"))
	assert.Zero(t, scorer.Calls(), "short text must not reach the scoring service")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QualitativeCalls.WithLabelValues("short_text")))
}

func TestExtractClampsQualitativeScores(t *testing.T) {
	e, _ := newTestExtractor(rawScorer{values: qualitative.Scores{"content_quality": 42, "clarity": -3, "originality": 6.5}}, nil)

	v := e.Extract(context.Background(), Request{Text: "A long enough thread about restaking economics and risk."})

	assert.Equal(t, 10.0, v.GetOr("content_quality", -1))
	assert.Equal(t, 0.0, v.GetOr("clarity", -1))
	assert.Equal(t, 6.5, v.GetOr("originality", -1))
	assert.False(t, v.Has("viral_potential"), "missing axes stay missing so model defaults apply")
	for _, name := range v.Names() {
		value, _ := v.Get(name)
		assert.False(t, math.IsNaN(value), name)
	}
}

func TestExtractDegradesQualitativeGroup(t *testing.T) {
	e, m := newTestExtractor(&qualitative.StaticScorer{Err: qualitative.ErrUnavailable}, nil)

	v := e.Extract(context.Background(), Request{Text: "A long enough thread about restaking economics and risk."})

	assert.False(t, v.Has("content_quality"))
	assert.True(t, v.Has("word_count"))
	assert.True(t, v.Has("hour_of_day"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureDegradations.WithLabelValues(GroupQualitative)))
}

func TestExtractHistoryAggregates(t *testing.T) {
	base := fixedNow.Add(-72 * time.Hour)
	analysis, _ := json.Marshal(map[string]any{"content_quality": 12, "themes": []string{"defi"}})
	history := &fakeHistory{
		snapshots: []domain.Snapshot{
			{TakenAt: base.Add(2 * time.Hour), Rank: 40, Score: 150, ScoreDelta: 10},
			{TakenAt: base, Rank: 80, Score: 100, ScoreDelta: 5},
			{
				TakenAt: base.Add(4 * time.Hour), Rank: 10, Score: 200, ScoreDelta: 15,
				Analysis: analysis,
				Tweets: []domain.Tweet{
					{Likes: 10, PostedAt: base},
					{Likes: 15, Retweets: 5, PostedAt: base.Add(time.Hour)},
					{Likes: 20, Replies: 10, PostedAt: base.Add(2 * time.Hour)},
				},
			},
		},
		profileErr: errors.New("no profile"),
	}
	e, m := newTestExtractor(nil, history)

	v := e.Extract(context.Background(), Request{Text: "gm", Identity: "alice", Platform: "cookie.fun"})

	assert.Equal(t, HistoryLimit, history.lastLimit)
	assert.Equal(t, 3.0, v.GetOr("hist_snapshot_count", -1))
	assert.InDelta(t, 130.0/3, v.GetOr("hist_avg_rank", -1), 1e-9)
	assert.Equal(t, 10.0, v.GetOr("hist_best_rank", -1))
	assert.InDelta(t, 150.0, v.GetOr("hist_avg_score", -1), 1e-9)
	assert.InDelta(t, 10.0, v.GetOr("hist_avg_score_delta", -1), 1e-9)
	assert.InDelta(t, 1.0, v.GetOr("hist_growth_rate", -1), 1e-9)
	assert.InDelta(t, 2.0/3, v.GetOr("hist_consistency", -1), 1e-9)
	assert.Equal(t, 10.0, v.GetOr("hist_llm_content_quality", -1))
	assert.False(t, v.Has("hist_llm_themes_count"))

	assert.InDelta(t, 20.0, v.GetOr("hist_tweet_engagement_mean", -1), 1e-9)
	assert.Equal(t, 30.0, v.GetOr("hist_tweet_engagement_max", -1))
	assert.InDelta(t, 200.0/3, v.GetOr("hist_tweet_engagement_var", -1), 1e-9)
	assert.Equal(t, 3.0, v.GetOr("hist_tweet_count", -1))

	assert.False(t, v.Has("profile_followers"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureDegradations.WithLabelValues(GroupProfile)))
}

func TestHistoryUsesFiveMostRecentSnapshots(t *testing.T) {
	var snaps []domain.Snapshot
	for i := 0; i < 8; i++ {
		snaps = append(snaps, domain.Snapshot{TakenAt: fixedNow.Add(time.Duration(i) * time.Hour), Rank: 100 - i, Score: float64(i)})
	}
	v := historyFeatures(snaps)

	assert.Equal(t, 5.0, v.GetOr("hist_snapshot_count", -1))
	assert.Equal(t, 93.0, v.GetOr("hist_best_rank", -1))
	assert.InDelta(t, (7.0-3.0)/3.0, v.GetOr("hist_growth_rate", -1), 1e-9)
	assert.Equal(t, 0.0, v.GetOr("hist_consistency", -1))
}

func TestGrowthRateZeroWhenFirstScoreIsZero(t *testing.T) {
	v := historyFeatures([]domain.Snapshot{
		{TakenAt: fixedNow, Score: 0},
		{TakenAt: fixedNow.Add(time.Hour), Score: 50},
	})
	assert.Equal(t, 0.0, v.GetOr("hist_growth_rate", -1))
}

func TestExtractHistoryFailureOmitsGroup(t *testing.T) {
	history := &fakeHistory{snapErr: errors.New("connection refused"), profileErr: errors.New("connection refused")}
	e, m := newTestExtractor(nil, history)

	v := e.Extract(context.Background(), Request{Text: "gm", Identity: "bob"})

	for _, name := range v.Names() {
		assert.NotContains(t, name, "hist_")
	}
	assert.True(t, v.Has("char_count"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureDegradations.WithLabelValues(GroupHistory)))
}

func TestExtractHistoryIsBoundedByRequestTime(t *testing.T) {
	posted := fixedNow.Add(-48 * time.Hour)
	history := &fakeHistory{
		snapshots: []domain.Snapshot{
			{TakenAt: posted.Add(-time.Hour), Rank: 50, Score: 100},
			{TakenAt: posted.Add(24 * time.Hour), Rank: 3, Score: 900},
		},
		profileErr: errors.New("no profile"),
	}
	e, _ := newTestExtractor(nil, history)

	v := e.Extract(context.Background(), Request{Text: "gm", Identity: "alice", At: posted})
	assert.Equal(t, posted, history.lastAsOf)
	assert.Equal(t, 1.0, v.GetOr("hist_snapshot_count", -1))
	assert.Equal(t, 50.0, v.GetOr("hist_best_rank", -1), "snapshots after the request time must not be seen")

	e.Extract(context.Background(), Request{Text: "gm", Identity: "alice"})
	assert.Equal(t, fixedNow, history.lastAsOf)
}

func TestExtractResolvesCampaignID(t *testing.T) {
	e, m := newTestExtractor(nil, nil)
	e.Campaigns = fakeCampaigns{"c-1": {ID: "c-1", RewardPool: 40000, Category: "defi", Platform: "cookie.fun"}}

	v := e.Extract(context.Background(), Request{Text: "gm", CampaignID: "c-1"})
	assert.Equal(t, 40000.0, v.GetOr("campaign_reward_pool", -1))
	assert.Equal(t, float64(CategoryCode("defi")), v.GetOr("campaign_category_code", -1))

	inline := &domain.CampaignContext{RewardPool: 10}
	assert.Same(t, inline, e.ResolveCampaign(context.Background(), Request{Campaign: inline, CampaignID: "c-1"}))

	v = e.Extract(context.Background(), Request{Text: "gm", CampaignID: "c-404"})
	assert.False(t, v.Has("campaign_reward_pool"))
	assert.True(t, v.Has("char_count"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeatureDegradations.WithLabelValues(GroupCampaign)))
}

func TestQualitativeScoresSkipsShortText(t *testing.T) {
	scorer := &qualitative.StaticScorer{Values: qualitative.Scores{"content_quality": 9}}
	e, _ := newTestExtractor(scorer, nil)

	q, err := e.QualitativeScores(context.Background(), "gm ser")
	require.NoError(t, err)
	assert.Equal(t, 5.0, q.GetOr("content_quality", -1))
	assert.Zero(t, scorer.Calls())

	q, err = e.QualitativeScores(context.Background(), "A long enough thread about restaking economics and risk.")
	require.NoError(t, err)
	assert.Equal(t, 9.0, q.GetOr("content_quality", -1))
	assert.Equal(t, 1, scorer.Calls())
}

func TestExtractProfileDocuments(t *testing.T) {
	history := &fakeHistory{profile: domain.AuthorProfile{
		Handle:                "carol",
		Followers:             1200,
		Verified:              true,
		AccountCreatedAt:      fixedNow.AddDate(0, 0, -400),
		SentimentDistribution: json.RawMessage(`{"overall": "Mostly bullish", "positive": 0.7}`),
		Badges:                json.RawMessage(`["og", "top10"]`),
		NetworkMetrics:        json.RawMessage(`{"centrality": {"degree": 0.4}, "is_hub": false, "bio": "dev"}`),
	}}
	scorer := &qualitative.StaticScorer{Values: qualitative.Scores{"sentiment_score": 8}}
	e, _ := newTestExtractor(scorer, history)

	v := e.Extract(context.Background(), Request{Text: "gm", Identity: "carol"})

	assert.Equal(t, 1200.0, v.GetOr("profile_followers", -1))
	assert.Equal(t, 1.0, v.GetOr("profile_verified", -1))
	assert.Equal(t, 400.0, v.GetOr("profile_account_age_days", -1))
	assert.Equal(t, 8.0, v.GetOr("profile_sentiment_distribution_overall", -1))
	assert.Equal(t, 0.7, v.GetOr("profile_sentiment_distribution_positive", -1))
	assert.Equal(t, 2.0, v.GetOr("profile_badges_count", -1))
	assert.Equal(t, 0.4, v.GetOr("profile_network_metrics_centrality_degree", -1))
	assert.Equal(t, 0.0, v.GetOr("profile_network_metrics_is_hub", -1))
	assert.False(t, v.Has("profile_network_metrics_bio"))
	assert.Equal(t, 1, scorer.Calls())
}

func TestFlattenClassifiesLeaves(t *testing.T) {
	items, err := Flatten("p", []byte(`{"a": {"b": 2}, "flag": true, "tags": ["x", "y"], "mood": "Bearish lately", "name": "bob", "n": null}`))
	require.NoError(t, err)

	kinds := make(map[string]Kind, len(items))
	for _, item := range items {
		kinds[item.Name] = item.Kind
	}
	assert.Equal(t, map[string]Kind{
		"p_a_b":        Numeric,
		"p_flag":       Numeric,
		"p_tags_count": Count,
		"p_mood":       Textual,
		"p_name":       Dropped,
		"p_n":          Dropped,
	}, kinds)

	_, err = Flatten("p", []byte(`{"broken":`))
	assert.Error(t, err)

	items, err = Flatten("p", nil)
	assert.NoError(t, err)
	assert.Empty(t, items)
}

func TestCampaignAndTemporalFeatures(t *testing.T) {
	e, _ := newTestExtractor(nil, nil)
	v := e.Extract(context.Background(), Request{
		Text:     "gm",
		Platform: "Cookie.Fun",
		Campaign: &domain.CampaignContext{RewardPool: 25000, CompetitionLevel: 0.6, Category: "Gardening"},
	})

	assert.Equal(t, 25000.0, v.GetOr("campaign_reward_pool", -1))
	assert.Equal(t, 0.6, v.GetOr("campaign_competition_level", -1))
	assert.Equal(t, float64(OtherCode), v.GetOr("campaign_category_code", -1))
	assert.Equal(t, 1.0, v.GetOr("platform_code", -1))

	assert.Equal(t, 18.0, v.GetOr("hour_of_day", -1))
	assert.Equal(t, 5.0, v.GetOr("day_of_week", -1))
	assert.Equal(t, 1.0, v.GetOr("is_weekend", -1))
	assert.Equal(t, 1.0, v.GetOr("is_prime_time", -1))

	assert.Equal(t, 2, CategoryCode("DeFi"))
	assert.Equal(t, 2, PlatformCode("yaps.kaito.ai"))
	assert.Equal(t, OtherCode, PlatformCode("unknown.xyz"))
}

func TestVectorCoercesAndAligns(t *testing.T) {
	v := NewVector()
	v.Set("a", math.NaN())
	v.Set("b", math.Inf(1))
	v.Set("c", 2)
	v.Set("a", 1)

	assert.Equal(t, []string{"a", "b", "c"}, v.Names())
	assert.Equal(t, 0.0, v.GetOr("b", -1))
	assert.Equal(t, []float64{2, 1, 7, 0}, v.Align([]string{"c", "a", "missing", "other"}, map[string]float64{"missing": 7}))
}
