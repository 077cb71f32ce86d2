package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"snapforecast/internal/domain"
	"snapforecast/internal/features"
	"snapforecast/internal/llm"
	"snapforecast/internal/logging"
)

const (
	maxPatternItems   = 5
	maxPromptSamples  = 40
	maxSampleRunes    = 280
	minTokenLength    = 3
	bestHoursReported = 3
)

// PatternSummarizer extracts themes, triggers and timing from matched samples.
type PatternSummarizer interface {
	Summarize(ctx context.Context, category string, samples []domain.ContentSample) (Patterns, string, error)
}

// LLMSummarizer asks a chat model for the patterns and falls back when the call or its reply is unusable.
type LLMSummarizer struct {
	Client      llm.ChatClient
	Model       string
	Temperature float64
	MaxTokens   int
	Fallback    PatternSummarizer
	Logger      logging.Logger
}

// Summarize implements PatternSummarizer.
func (s LLMSummarizer) Summarize(ctx context.Context, category string, samples []domain.ContentSample) (Patterns, string, error) {
	if len(samples) == 0 {
		return Patterns{}, SourceHeuristic, nil
	}
	if s.Client == nil || s.Model == "" {
		return s.withFallback(ctx, category, samples, errors.New("pattern summarizer misconfigured"))
	}

	payload, err := buildPatternPrompt(category, samples)
	if err != nil {
		return s.withFallback(ctx, category, samples, err)
	}
	resp, err := s.Client.ChatCompletion(ctx, llm.ChatCompletionRequest{
		Model:          s.Model,
		Messages:       payload,
		Temperature:    s.Temperature,
		MaxTokens:      s.MaxTokens,
		ResponseFormat: llm.JSONObject,
	})
	if err != nil {
		return s.withFallback(ctx, category, samples, err)
	}
	patterns, err := parsePatterns(resp.Content())
	if err != nil {
		return s.withFallback(ctx, category, samples, err)
	}
	return patterns, SourceLLM, nil
}

func (s LLMSummarizer) withFallback(ctx context.Context, category string, samples []domain.ContentSample, cause error) (Patterns, string, error) {
	logging.OrDiscard(s.Logger).WithError(cause).WithField("category", category).Debug("pattern summary fallback")
	if s.Fallback != nil {
		return s.Fallback.Summarize(ctx, category, samples)
	}
	return Patterns{}, "", cause
}

func buildPatternPrompt(category string, samples []domain.ContentSample) ([]llm.Message, error) {
	type promptItem struct {
		Rank     int       `json:"rank"`
		Text     string    `json:"text"`
		PostedAt time.Time `json:"posted_at"`
	}
	limited := samples
	if len(limited) > maxPromptSamples {
		limited = limited[:maxPromptSamples]
	}
	payload := struct {
		Category string       `json:"category"`
		Posts    []promptItem `json:"posts"`
	}{Category: category, Posts: make([]promptItem, 0, len(limited))}
	for _, sample := range limited {
		text := []rune(sample.Text)
		if len(text) > maxSampleRunes {
			text = text[:maxSampleRunes]
		}
		payload.Posts = append(payload.Posts, promptItem{Rank: sample.Rank, Text: string(text), PostedAt: sample.PostedAt.UTC()})
	}
	postsJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("pattern prompt marshal: %w", err)
	}

	system := "You analyse top-ranked crypto social posts for an attention-economy leaderboard. Respond STRICTLY with valid JSON."
	user := fmt.Sprintf(`Find what the best posts of this category have in common.
Rules:
- Up to 5 short items per list.
- "themes": recurring topics.
- "triggers": engagement triggers (hooks, formats, calls to action).
- "timing": when the posts were published, in UTC.

Respond with JSON using this schema:
{"themes": ["..."], "triggers": ["..."], "timing": ["..."]}

Posts:
%s`, string(postsJSON))

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, nil
}

func parsePatterns(content string) (Patterns, error) {
	payload := llm.ExtractJSON(content)
	if payload == "" {
		return Patterns{}, errors.New("pattern response missing json payload")
	}
	var decoded Patterns
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return Patterns{}, fmt.Errorf("pattern response decode: %w", err)
	}
	decoded.Themes = cleanList(decoded.Themes)
	decoded.Triggers = cleanList(decoded.Triggers)
	decoded.Timing = cleanList(decoded.Timing)
	if len(decoded.Themes)+len(decoded.Triggers)+len(decoded.Timing) == 0 {
		return Patterns{}, errors.New("pattern response is empty")
	}
	return decoded, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == maxPatternItems {
			break
		}
	}
	return out
}

// HeuristicSummarizer derives patterns from token and hashtag frequency and posting hours.
type HeuristicSummarizer struct{}

// Summarize implements PatternSummarizer.
func (HeuristicSummarizer) Summarize(_ context.Context, _ string, samples []domain.ContentSample) (Patterns, string, error) {
	tokens := make(map[string]int)
	hashtags := make(map[string]int)
	var questions, links, threads int
	hourScore := make(map[int]float64)
	hourCount := make(map[int]int)

	for _, s := range samples {
		seen := make(map[string]struct{})
		for _, t := range tokenize(s.Text) {
			if _, ok := stopwords[t]; ok {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tokens[t]++
		}
		for _, h := range features.Hashtags(s.Text) {
			hashtags[strings.ToLower(h)]++
		}
		lower := strings.ToLower(s.Text)
		if strings.Contains(s.Text, "?") {
			questions++
		}
		if strings.Contains(lower, "http") {
			links++
		}
		if strings.Contains(lower, "🧵") || strings.Contains(lower, "thread") || strings.Contains(lower, "1/") {
			threads++
		}
		if !s.PostedAt.IsZero() {
			h := s.PostedAt.UTC().Hour()
			hourScore[h] += s.Score
			hourCount[h]++
		}
	}

	patterns := Patterns{
		Themes: append(topKeys(hashtags, 2), topKeys(tokens, maxPatternItems)...),
	}
	patterns.Themes = cleanList(patterns.Themes)

	n := len(samples)
	if n > 0 {
		if ratio := float64(questions) / float64(n); ratio >= 0.25 {
			patterns.Triggers = append(patterns.Triggers, fmt.Sprintf("questions to the audience (%.0f%% of posts)", ratio*100))
		}
		if ratio := float64(threads) / float64(n); ratio >= 0.2 {
			patterns.Triggers = append(patterns.Triggers, fmt.Sprintf("thread format (%.0f%% of posts)", ratio*100))
		}
		if ratio := float64(links) / float64(n); ratio >= 0.3 {
			patterns.Triggers = append(patterns.Triggers, fmt.Sprintf("links to sources (%.0f%% of posts)", ratio*100))
		}
		if len(hashtags) > 0 {
			patterns.Triggers = append(patterns.Triggers, "category hashtags")
		}
	}

	for _, h := range bestHours(hourScore, hourCount) {
		patterns.Timing = append(patterns.Timing, fmt.Sprintf("%02d:00-%02d:00 UTC", h, (h+1)%24))
	}
	return patterns, SourceHeuristic, nil
}

// bestHours ranks posting hours by average sample score.
func bestHours(score map[int]float64, count map[int]int) []int {
	hours := make([]int, 0, len(count))
	for h := range count {
		hours = append(hours, h)
	}
	avg := func(h int) float64 { return score[h] / float64(count[h]) }
	sort.Slice(hours, func(i, j int) bool {
		ai, aj := avg(hours[i]), avg(hours[j])
		if ai != aj {
			return ai > aj
		}
		if count[hours[i]] != count[hours[j]] {
			return count[hours[i]] > count[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > bestHoursReported {
		hours = hours[:bestHoursReported]
	}
	return hours
}

func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c < 2 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func tokenize(s string) []string {
	replacer := strings.NewReplacer(
		",", " ", ".", " ", ":", " ", ";", " ", "!", " ", "?", " ",
		"(", " ", ")", " ", "'", " ", "\"", " ", "-", " ", "_", " ",
		"#", " ", "@", " ", "$", " ", "/", " ",
	)
	normalized := strings.ToLower(replacer.Replace(s))
	var tokens []string
	for _, p := range strings.Fields(normalized) {
		if len(p) < minTokenLength || strings.HasPrefix(p, "http") {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {}, "any": {},
	"can": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "this": {},
	"that": {}, "with": {}, "from": {}, "they": {}, "will": {}, "your": {}, "what": {}, "about": {},
	"just": {}, "into": {}, "than": {}, "then": {}, "them": {}, "been": {}, "more": {}, "when": {},
	"who": {}, "how": {}, "why": {}, "its": {}, "get": {}, "got": {}, "now": {}, "here": {},
	"there": {}, "their": {}, "which": {}, "would": {}, "could": {}, "should": {}, "some": {}, "very": {},
}
