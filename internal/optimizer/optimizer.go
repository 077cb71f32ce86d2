package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/logging"
	"snapforecast/internal/qualitative"
)

const (
	// DefaultSampleLimit is how many top-ranked posts are considered per analysis.
	DefaultSampleLimit = 200
	// DefaultMinCategoryMatch is the category_match score a sample needs to count.
	DefaultMinCategoryMatch = 6.0
	// DefaultCacheTTL bounds how long an analysis is reused.
	DefaultCacheTTL = 6 * time.Hour

	scoringConcurrency = 8
)

// SampleSource yields the best-ranked historical posts of a platform.
type SampleSource interface {
	TopContent(ctx context.Context, platform string, limit int) ([]domain.ContentSample, error)
}

// DraftScorer rates a draft on the content axes. *features.Extractor implements it, so drafts get the
// same short-text defaults and score-cache entries as feature extraction.
type DraftScorer interface {
	QualitativeScores(ctx context.Context, text string) (*features.Vector, error)
}

// Optimizer answers category intelligence and success questions.
type Optimizer struct {
	Samples          SampleSource
	Scorer           qualitative.Scorer
	Drafts           DraftScorer
	Summarizer       PatternSummarizer
	Cache            AnalysisCache
	SampleLimit      int
	MinCategoryMatch float64
	Now              func() time.Time
	Logger           logging.Logger
}

// New wires an optimizer with default limits. A nil summarizer uses the heuristic one; nil drafts
// scores drafts through a bare extractor over scorer.
func New(samples SampleSource, scorer qualitative.Scorer, drafts DraftScorer, summarizer PatternSummarizer, cache AnalysisCache, logger logging.Logger) (*Optimizer, error) {
	if samples == nil {
		return nil, errors.New("optimizer requires a sample source")
	}
	if summarizer == nil {
		summarizer = HeuristicSummarizer{}
	}
	if drafts == nil {
		drafts = &features.Extractor{Scorer: scorer, Logger: logger}
	}
	return &Optimizer{
		Samples:          samples,
		Scorer:           scorer,
		Drafts:           drafts,
		Summarizer:       summarizer,
		Cache:            cache,
		SampleLimit:      DefaultSampleLimit,
		MinCategoryMatch: DefaultMinCategoryMatch,
		Now:              time.Now,
		Logger:           logging.OrDiscard(logger),
	}, nil
}

type scoredSample struct {
	sample domain.ContentSample
	scores qualitative.Scores
}

// Analyze builds (or reuses) the analysis of a category on a platform.
func (o *Optimizer) Analyze(ctx context.Context, category, platform string) (*Analysis, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	platform = domain.NormalizePlatform(platform)
	if category == "" {
		return nil, errors.New("optimizer: category is required")
	}
	key := cacheKey(category, platform)
	if o.Cache != nil {
		if a, ok := o.Cache.Get(key); ok {
			return a, nil
		}
	}

	limit := o.SampleLimit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	samples, err := o.Samples.TopContent(ctx, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("optimizer: load samples: %w", err)
	}

	matched, err := o.matchCategory(ctx, category, samples)
	if err != nil {
		return nil, err
	}

	picked := make([]domain.ContentSample, len(matched))
	for i, m := range matched {
		picked[i] = m.sample
	}
	patterns, source, err := o.Summarizer.Summarize(ctx, category, picked)
	if err != nil {
		o.Logger.WithError(err).WithField("category", category).Warn("pattern summary unavailable")
		patterns, source, _ = HeuristicSummarizer{}.Summarize(ctx, category, picked)
	}

	agg := aggregate(matched)
	a := &Analysis{
		Category:        category,
		Platform:        platform,
		Considered:      len(samples),
		Matched:         len(matched),
		Aggregates:      agg,
		Patterns:        patterns,
		PatternSource:   source,
		Recommendations: recommendations(agg, patterns, len(matched)),
		GeneratedAt:     o.now().UTC(),
	}
	if o.Cache != nil {
		o.Cache.Add(key, a)
	}

	o.Logger.WithFields(logging.Fields{
		"category":   category,
		"platform":   platform,
		"considered": len(samples),
		"matched":    len(matched),
		"patterns":   source,
	}).Info("category analysed")
	return a, nil
}

// matchCategory keeps samples scoring at least MinCategoryMatch, preserving rank order. Samples the
// scorer cannot rate fall back to a keyword match.
func (o *Optimizer) matchCategory(ctx context.Context, category string, samples []domain.ContentSample) ([]scoredSample, error) {
	axes := []qualitative.Axis{qualitative.CategoryMatchAxis(category), qualitative.ContentAxes[0], qualitative.ContentAxes[1]}
	scored := make([]scoredSample, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoringConcurrency)
	for i, s := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored[i] = scoredSample{sample: s, scores: o.scoreSample(gctx, category, s.Text, axes)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("optimizer: score samples: %w", err)
	}

	minMatch := o.MinCategoryMatch
	if minMatch <= 0 {
		minMatch = DefaultMinCategoryMatch
	}
	out := scored[:0]
	for _, s := range scored {
		if s.scores["category_match"] >= minMatch {
			out = append(out, s)
		}
	}
	return out, nil
}

func (o *Optimizer) scoreSample(ctx context.Context, category, text string, axes []qualitative.Axis) qualitative.Scores {
	var scores qualitative.Scores
	if o.Scorer != nil {
		s, err := o.Scorer.Score(ctx, text, axes)
		if err != nil && len(s) == 0 {
			o.Logger.WithError(err).Debug("sample scoring failed")
		}
		scores = s
	}
	if scores == nil {
		scores = qualitative.Scores{}
	}
	if _, ok := scores["category_match"]; !ok {
		scores["category_match"] = keywordMatch(category, text)
	}
	for _, axis := range axes[1:] {
		if _, ok := scores[axis.Name]; !ok {
			scores[axis.Name] = qualitative.NeutralDefaults[axis.Name]
		}
	}
	return scores
}

func aggregate(samples []scoredSample) Aggregates {
	n := float64(len(samples))
	if n == 0 {
		return Aggregates{}
	}
	var a Aggregates
	for _, s := range samples {
		text := s.sample.Text
		a.AvgLength += float64(utf8.RuneCountInString(text))
		a.AvgWords += float64(len(strings.Fields(text)))
		a.AvgHashtags += float64(features.HashtagCount(text))
		a.AvgMentions += float64(features.MentionCount(text))
		a.AvgEmoji += float64(features.CountEmoji(text))
		if strings.Contains(text, "?") {
			a.QuestionRatio++
		}
		if strings.Contains(strings.ToLower(text), "http") {
			a.URLRatio++
		}
		a.AvgQuality += s.scores["content_quality"]
		a.AvgViral += s.scores["viral_potential"]
		a.AvgCategoryMatch += s.scores["category_match"]
		a.AvgRank += float64(s.sample.Rank)
	}
	return Aggregates{
		AvgLength:        roundTo(a.AvgLength/n, 2),
		AvgWords:         roundTo(a.AvgWords/n, 2),
		AvgHashtags:      roundTo(a.AvgHashtags/n, 2),
		AvgMentions:      roundTo(a.AvgMentions/n, 2),
		AvgEmoji:         roundTo(a.AvgEmoji/n, 2),
		QuestionRatio:    roundTo(a.QuestionRatio/n, 3),
		URLRatio:         roundTo(a.URLRatio/n, 3),
		AvgQuality:       roundTo(a.AvgQuality/n, 2),
		AvgViral:         roundTo(a.AvgViral/n, 2),
		AvgCategoryMatch: roundTo(a.AvgCategoryMatch/n, 2),
		AvgRank:          roundTo(a.AvgRank/n, 2),
	}
}

func recommendations(agg Aggregates, patterns Patterns, matched int) []string {
	if matched == 0 {
		return []string{"Not enough top-ranked posts in this category yet; follow general platform practice."}
	}
	var notes []string
	notes = append(notes, fmt.Sprintf("Keep posts around %.0f characters.", agg.AvgLength))
	if agg.AvgHashtags >= 0.5 {
		notes = append(notes, fmt.Sprintf("Use about %.0f hashtags.", agg.AvgHashtags))
	} else {
		notes = append(notes, "Top posts rarely use hashtags.")
	}
	if agg.QuestionRatio >= 0.25 {
		notes = append(notes, "Ask the audience a question.")
	}
	if agg.AvgEmoji >= 1 {
		notes = append(notes, "A few emoji are common among top posts.")
	}
	if agg.URLRatio >= 0.3 {
		notes = append(notes, "Link to a source or tool.")
	}
	if len(patterns.Themes) > 0 {
		notes = append(notes, "Recurring themes: "+strings.Join(patterns.Themes, ", ")+".")
	}
	if len(patterns.Timing) > 0 {
		notes = append(notes, "Best posting window: "+patterns.Timing[0]+".")
	}
	return notes
}

func (o *Optimizer) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
