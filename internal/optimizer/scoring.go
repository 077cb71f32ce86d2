package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"snapforecast/internal/features"
	"snapforecast/internal/qualitative"
)

const neutralFit = 0.5

var categoryKeywords = map[string][]string{
	"gaming":    {"game", "gaming", "gamefi", "play", "player", "quest", "guild", "esports", "p2e"},
	"defi":      {"defi", "yield", "liquidity", "lending", "dex", "staking", "restaking", "tvl", "apy", "swap", "vault"},
	"nft":       {"nft", "nfts", "mint", "collection", "pfp", "opensea", "floor", "art"},
	"meme":      {"meme", "memecoin", "doge", "pepe", "degen", "wagmi", "ngmi", "lol"},
	"education": {"learn", "guide", "explained", "thread", "tutorial", "how", "basics", "101"},
	"trading":   {"trade", "trading", "chart", "long", "short", "breakout", "support", "resistance", "entry", "leverage"},
	"social":    {"community", "gm", "friends", "social", "followers", "space", "spaces", "vibes"},
}

// keywordMatch rates category membership on the 0-10 scale from vocabulary hits alone.
func keywordMatch(category, text string) float64 {
	words := categoryKeywords[category]
	if len(words) == 0 {
		words = []string{category}
	}
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		tokens[strings.Trim(t, "#$@.,!?:;()\"'")] = struct{}{}
	}
	hits := 0
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			hits++
		}
	}
	return math.Min(qualitative.MaxScore, float64(hits)*4)
}

// PredictSuccess scores a draft against the category's top posts on a 0-10 scale.
func (o *Optimizer) PredictSuccess(ctx context.Context, text, category, platform string) (*SuccessPrediction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("optimizer: text is required")
	}
	analysis, err := o.Analyze(ctx, category, platform)
	if err != nil {
		return nil, err
	}

	quality, viral := o.draftScores(ctx, text)

	length := float64(utf8.RuneCountInString(text))
	hashtags := float64(features.HashtagCount(text))
	lengthFit, hashtagFit := neutralFit, neutralFit
	if analysis.Matched > 0 {
		lengthFit = fit(length, analysis.Aggregates.AvgLength)
		hashtagFit = fit(hashtags, analysis.Aggregates.AvgHashtags)
	}

	components := map[string]float64{
		"quality":     quality / 10,
		"length_fit":  lengthFit,
		"hashtag_fit": hashtagFit,
		"viral":       viral / 10,
	}
	score := 10 * weightedSum(components)

	return &SuccessPrediction{
		Category:    analysis.Category,
		Platform:    analysis.Platform,
		Score:       roundTo(score, 2),
		Components:  roundAll(components),
		Suggestions: suggestions(text, length, hashtags, quality, viral, lengthFit, hashtagFit, analysis),
	}, nil
}

// SuccessScore returns only the score of PredictSuccess.
func (o *Optimizer) SuccessScore(ctx context.Context, text, category, platform string) (float64, error) {
	p, err := o.PredictSuccess(ctx, text, category, platform)
	if err != nil {
		return 0, err
	}
	return p.Score, nil
}

// draftScores returns content_quality and viral_potential of the draft, neutral where unavailable.
func (o *Optimizer) draftScores(ctx context.Context, text string) (quality, viral float64) {
	quality = qualitative.NeutralDefaults["content_quality"]
	viral = qualitative.NeutralDefaults["viral_potential"]
	if o.Drafts == nil {
		return quality, viral
	}
	v, err := o.Drafts.QualitativeScores(ctx, text)
	if err != nil {
		o.Logger.WithError(err).Debug("draft scoring failed, using neutral scores")
		return quality, viral
	}
	return v.GetOr("content_quality", quality), v.GetOr("viral_potential", viral)
}

// fit is 1 at the category average and falls linearly to 0 one average away.
func fit(x, avg float64) float64 {
	return 1 - math.Min(1, math.Abs(x-avg)/math.Max(avg, 1))
}

func suggestions(text string, length, hashtags, quality, viral, lengthFit, hashtagFit float64, a *Analysis) []string {
	var out []string
	if a.Matched > 0 && lengthFit < 0.7 {
		if length < a.Aggregates.AvgLength {
			out = append(out, fmt.Sprintf("Expand to about %.0f characters.", a.Aggregates.AvgLength))
		} else {
			out = append(out, fmt.Sprintf("Tighten to about %.0f characters.", a.Aggregates.AvgLength))
		}
	}
	if a.Matched > 0 && hashtagFit < 0.7 {
		if hashtags < a.Aggregates.AvgHashtags {
			out = append(out, fmt.Sprintf("Add hashtags; top posts use about %.0f.", a.Aggregates.AvgHashtags))
		} else {
			out = append(out, "Use fewer hashtags.")
		}
	}
	if quality < 6 {
		out = append(out, "Add a concrete insight, number or source.")
	}
	if viral < 5 {
		out = append(out, "Open with a stronger hook.")
	}
	lower := strings.ToLower(text)
	var missing []string
	for _, theme := range a.Patterns.Themes {
		if !strings.Contains(lower, strings.TrimPrefix(strings.ToLower(theme), "#")) {
			missing = append(missing, theme)
		}
	}
	if len(missing) > 0 && len(missing) == len(a.Patterns.Themes) {
		out = append(out, "Touch on a recurring theme: "+strings.Join(missing, ", ")+".")
	}
	return out
}

func weightedSum(weights map[string]float64) float64 {
	return clamp01(weights["quality"]*0.35 +
		weights["length_fit"]*0.25 +
		weights["hashtag_fit"]*0.15 +
		weights["viral"]*0.25)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}

func roundAll(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = roundTo(v, 3)
	}
	return out
}

