package optimizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/llm"
	"snapforecast/internal/predict"
	"snapforecast/internal/qualitative"
)

var _ predict.SuccessScorer = (*Optimizer)(nil)

const defiPost = "#defi yield on the new vault is live, apy looks great"

type fakeSamples struct {
	samples []domain.ContentSample
	err     error
	calls   atomic.Int32
}

func (f *fakeSamples) TopContent(context.Context, string, int) ([]domain.ContentSample, error) {
	f.calls.Add(1)
	return f.samples, f.err
}

// yieldScorer rates anything mentioning yield as DeFi.
type yieldScorer struct{}

func (yieldScorer) Score(_ context.Context, text string, axes []qualitative.Axis) (qualitative.Scores, error) {
	out := qualitative.Scores{}
	for _, a := range axes {
		switch a.Name {
		case "category_match":
			out[a.Name] = 2
			if strings.Contains(text, "yield") {
				out[a.Name] = 8
			}
		case "content_quality":
			out[a.Name] = 7
		case "viral_potential":
			out[a.Name] = 6
		}
	}
	return out, nil
}

type fakeChat struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (f *fakeChat) ChatCompletion(context.Context, llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	choice := llm.Choice{}
	choice.Message.Content = f.response
	return &llm.ChatCompletionResponse{Choices: []llm.Choice{choice}}, nil
}

func sampleAt(text string, rank int, hour int, score float64) domain.ContentSample {
	return domain.ContentSample{
		Handle:   "author",
		Platform: "cookie.fun",
		Text:     text,
		Rank:     rank,
		Score:    score,
		PostedAt: time.Date(2025, 5, 1, hour, 0, 0, 0, time.UTC),
	}
}

func mixedSamples() []domain.ContentSample {
	return []domain.ContentSample{
		sampleAt(defiPost, 1, 14, 900),
		sampleAt("gm gamers, the new quest season starts today", 2, 9, 800),
		sampleAt(defiPost, 3, 14, 700),
		sampleAt("guild raid tonight, who is in?", 4, 20, 600),
		sampleAt(defiPost, 5, 18, 500),
	}
}

func newTestOptimizer(t *testing.T, samples SampleSource, scorer qualitative.Scorer, summarizer PatternSummarizer) *Optimizer {
	t.Helper()
	o, err := New(samples, scorer, nil, summarizer, NewAnalysisCache(16, time.Hour), nil)
	require.NoError(t, err)
	o.Now = func() time.Time { return time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC) }
	return o
}

func TestAnalyzeFiltersByCategoryMatch(t *testing.T) {
	o := newTestOptimizer(t, &fakeSamples{samples: mixedSamples()}, yieldScorer{}, nil)

	a, err := o.Analyze(context.Background(), "DeFi", "Cookie.fun")
	require.NoError(t, err)

	assert.Equal(t, "defi", a.Category)
	assert.Equal(t, "cookie.fun", a.Platform)
	assert.Equal(t, 5, a.Considered)
	assert.Equal(t, 3, a.Matched)
	assert.InDelta(t, float64(len([]rune(defiPost))), a.Aggregates.AvgLength, 1e-9)
	assert.InDelta(t, 1.0, a.Aggregates.AvgHashtags, 1e-9)
	assert.InDelta(t, 7.0, a.Aggregates.AvgQuality, 1e-9)
	assert.InDelta(t, 3.0, a.Aggregates.AvgRank, 1e-9)
	assert.Equal(t, SourceHeuristic, a.PatternSource)
	assert.Contains(t, a.Patterns.Themes, "#defi")
	assert.Equal(t, "14:00-15:00 UTC", a.Patterns.Timing[0])
	assert.NotEmpty(t, a.Recommendations)
}

func TestAnalyzeIsCachedPerCategoryAndPlatform(t *testing.T) {
	source := &fakeSamples{samples: mixedSamples()}
	o := newTestOptimizer(t, source, yieldScorer{}, nil)
	ctx := context.Background()

	first, err := o.Analyze(ctx, "defi", "cookie.fun")
	require.NoError(t, err)
	second, err := o.Analyze(ctx, "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())

	_, err = o.Analyze(ctx, "defi", "kaito")
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestAnalyzeSourceFailure(t *testing.T) {
	o := newTestOptimizer(t, &fakeSamples{err: errors.New("db down")}, yieldScorer{}, nil)
	_, err := o.Analyze(context.Background(), "defi", "cookie.fun")
	assert.ErrorContains(t, err, "db down")

	_, err = o.Analyze(context.Background(), " ", "cookie.fun")
	assert.Error(t, err)
}

func TestAnalyzeWithoutScorerUsesKeywords(t *testing.T) {
	samples := []domain.ContentSample{
		sampleAt("yield and liquidity are back on the dex", 1, 10, 100),
		sampleAt("yield is nice", 2, 10, 90),
	}
	o := newTestOptimizer(t, &fakeSamples{samples: samples}, nil, nil)

	a, err := o.Analyze(context.Background(), "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Matched)
	assert.InDelta(t, 5.0, a.Aggregates.AvgQuality, 1e-9)
}

func TestLLMSummarizerPatterns(t *testing.T) {
	chat := &fakeChat{response: `{"themes": ["restaking", "restaking", " vault launches "], "triggers": ["apy screenshots"], "timing": ["14:00 UTC"]}`}
	summarizer := LLMSummarizer{Client: chat, Model: "m", Fallback: HeuristicSummarizer{}}
	o := newTestOptimizer(t, &fakeSamples{samples: mixedSamples()}, yieldScorer{}, summarizer)

	a, err := o.Analyze(context.Background(), "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, a.PatternSource)
	assert.Equal(t, []string{"restaking", "vault launches"}, a.Patterns.Themes)
	assert.Equal(t, 1, chat.calls)
}

func TestLLMSummarizerFallsBack(t *testing.T) {
	for _, chat := range []*fakeChat{
		{err: errors.New("timeout")},
		{response: "no idea"},
		{response: `{"themes": []}`},
	} {
		summarizer := LLMSummarizer{Client: chat, Model: "m", Fallback: HeuristicSummarizer{}}
		patterns, source, err := summarizer.Summarize(context.Background(), "defi", mixedSamples())
		require.NoError(t, err)
		assert.Equal(t, SourceHeuristic, source)
		assert.NotEmpty(t, patterns.Timing)
	}

	_, _, err := LLMSummarizer{Client: &fakeChat{err: errors.New("timeout")}, Model: "m"}.Summarize(context.Background(), "defi", mixedSamples())
	assert.Error(t, err)
}

func TestPredictSuccessMatchingDraft(t *testing.T) {
	o := newTestOptimizer(t, &fakeSamples{samples: mixedSamples()}, yieldScorer{}, nil)

	p, err := o.PredictSuccess(context.Background(), defiPost, "defi", "cookie.fun")
	require.NoError(t, err)
	assert.InDelta(t, 7.95, p.Score, 1e-9)
	assert.Equal(t, 1.0, p.Components["length_fit"])
	assert.Equal(t, 1.0, p.Components["hashtag_fit"])

	score, err := o.SuccessScore(context.Background(), defiPost, "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Equal(t, p.Score, score)
}

func TestPredictSuccessSuggestsLength(t *testing.T) {
	o := newTestOptimizer(t, &fakeSamples{samples: mixedSamples()}, yieldScorer{}, nil)

	p, err := o.PredictSuccess(context.Background(), "yield", "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Less(t, p.Score, 7.95)
	assert.Less(t, p.Components["length_fit"], 0.7)
	require.NotEmpty(t, p.Suggestions)
	assert.Contains(t, p.Suggestions[0], "Expand")
}

func TestPredictSuccessWithoutMatchesUsesNeutralFits(t *testing.T) {
	o := newTestOptimizer(t, &fakeSamples{}, yieldScorer{}, nil)

	p, err := o.PredictSuccess(context.Background(), "a long thought about yields", "defi", "cookie.fun")
	require.NoError(t, err)
	assert.InDelta(t, 5.95, p.Score, 1e-9)

	_, err = o.PredictSuccess(context.Background(), "  ", "defi", "cookie.fun")
	assert.Error(t, err)
}

func TestPredictSuccessShortDraftUsesNeutralScores(t *testing.T) {
	scorer := &qualitative.StaticScorer{Values: qualitative.Scores{"content_quality": 9, "viral_potential": 9}}
	o := newTestOptimizer(t, &fakeSamples{}, scorer, nil)

	p, err := o.PredictSuccess(context.Background(), "gm ser", "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Zero(t, scorer.Calls(), "short drafts must not reach the scoring service")
	assert.Equal(t, 0.5, p.Components["quality"])
	assert.Equal(t, 0.3, p.Components["viral"])
}

func TestDraftScoringSharesTheExtractionCacheEntry(t *testing.T) {
	inner := &qualitative.StaticScorer{Values: qualitative.Scores{"content_quality": 8, "viral_potential": 6}}
	cache, err := qualitative.NewLRUCache(16, time.Hour)
	require.NoError(t, err)
	scorer := qualitative.NewCachedScorer(inner, cache, nil)
	extractor := features.NewExtractor(scorer, nil, nil, nil)

	o, err := New(&fakeSamples{}, scorer, extractor, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	v := extractor.Extract(ctx, features.Request{Text: defiPost})
	assert.Equal(t, 8.0, v.GetOr("content_quality", -1))

	p, err := o.PredictSuccess(ctx, defiPost, "defi", "cookie.fun")
	require.NoError(t, err)
	assert.Equal(t, 0.8, p.Components["quality"])
	assert.Equal(t, 1, inner.Calls(), "one draft text is scored once")
}

func TestFit(t *testing.T) {
	assert.Equal(t, 1.0, fit(100, 100))
	assert.InDelta(t, 0.5, fit(50, 100), 1e-9)
	assert.Equal(t, 0.0, fit(300, 100))
	assert.Equal(t, 1.0, fit(0, 0))
	assert.Equal(t, 0.0, fit(2, 0))
}

func TestNewRequiresSamples(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
