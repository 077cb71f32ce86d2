// Package optimizer mines top-ranked content per category and scores drafts against it.
package optimizer

import "time"

// Aggregates are quantitative averages over the matched samples.
type Aggregates struct {
	AvgLength        float64 `json:"avg_length"`
	AvgWords         float64 `json:"avg_words"`
	AvgHashtags      float64 `json:"avg_hashtags"`
	AvgMentions      float64 `json:"avg_mentions"`
	AvgEmoji         float64 `json:"avg_emoji"`
	QuestionRatio    float64 `json:"question_ratio"`
	URLRatio         float64 `json:"url_ratio"`
	AvgQuality       float64 `json:"avg_quality"`
	AvgViral         float64 `json:"avg_viral"`
	AvgCategoryMatch float64 `json:"avg_category_match"`
	AvgRank          float64 `json:"avg_rank"`
}

// Patterns summarise what the matched samples have in common.
type Patterns struct {
	Themes   []string `json:"themes"`
	Triggers []string `json:"triggers"`
	Timing   []string `json:"timing"`
}

// Analysis is the category intelligence for one (category, platform) pair.
type Analysis struct {
	Category        string     `json:"category"`
	Platform        string     `json:"platform"`
	Considered      int        `json:"considered"`
	Matched         int        `json:"matched"`
	Aggregates      Aggregates `json:"aggregates"`
	Patterns        Patterns   `json:"patterns"`
	PatternSource   string     `json:"pattern_source"`
	Recommendations []string   `json:"recommendations"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// SuccessPrediction scores a draft against its category.
type SuccessPrediction struct {
	Category    string             `json:"category"`
	Platform    string             `json:"platform"`
	Score       float64            `json:"score"`
	Components  map[string]float64 `json:"components"`
	Suggestions []string           `json:"suggestions"`
}

// Pattern sources.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)
