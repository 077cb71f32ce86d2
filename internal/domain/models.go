// Package domain holds the data model shared by extraction, classification and prediction.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// CampaignContext describes the campaign a piece of content competes in. Read-only to the forecasting core.
type CampaignContext struct {
	ID               string  `json:"id,omitempty"`
	RewardPool       float64 `json:"reward_pool"`
	CompetitionLevel float64 `json:"competition_level"`
	Category         string  `json:"category"`
	Platform         string  `json:"platform"`
	Timeframe        string  `json:"timeframe,omitempty"`
}

// ContentItem is a piece of content to score. Immutable once scored.
type ContentItem struct {
	ID       string          `json:"id,omitempty"`
	Text     string          `json:"text"`
	Images   []string        `json:"images,omitempty"`
	Category string          `json:"category,omitempty"`
	Author   string          `json:"author,omitempty"`
	Campaign CampaignContext `json:"campaign"`
}

// LeaderboardPosition is one observed rank of an author.
type LeaderboardPosition struct {
	Timestamp time.Time `json:"timestamp"`
	Rank      int       `json:"rank"`
	Score     float64   `json:"score"`
}

// AuthorProfile aggregates what is known about an identity. Append-only history.
type AuthorProfile struct {
	Handle           string                `json:"handle"`
	Followers        int                   `json:"followers_count"`
	Following        int                   `json:"following_count"`
	Tweets           int                   `json:"tweet_count"`
	Verified         bool                  `json:"verified"`
	AccountCreatedAt time.Time             `json:"account_created_at"`
	EngagementRate   float64               `json:"engagement_rate"`
	Mindshare        float64               `json:"mindshare"`
	Positions        []LeaderboardPosition `json:"positions,omitempty"`

	EngagementPatterns    json.RawMessage `json:"engagement_patterns,omitempty"`
	SentimentDistribution json.RawMessage `json:"sentiment_distribution,omitempty"`
	Badges                json.RawMessage `json:"badges,omitempty"`
	NetworkMetrics        json.RawMessage `json:"network_metrics,omitempty"`
}

// AccountAgeDays returns whole days since account creation, 0 when unknown.
func (p AuthorProfile) AccountAgeDays(now time.Time) int {
	if p.AccountCreatedAt.IsZero() || now.Before(p.AccountCreatedAt) {
		return 0
	}
	return int(now.Sub(p.AccountCreatedAt).Hours() / 24)
}

// BestRank returns the best (lowest) rank ever observed.
func (p AuthorProfile) BestRank() (int, bool) {
	best := 0
	for _, pos := range p.Positions {
		if pos.Rank <= 0 {
			continue
		}
		if best == 0 || pos.Rank < best {
			best = pos.Rank
		}
	}
	return best, best > 0
}

// Tweet is one post attached to a leaderboard snapshot.
type Tweet struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Likes    int       `json:"likes"`
	Retweets int       `json:"retweets"`
	Replies  int       `json:"replies"`
	Quotes   int       `json:"quotes"`
	PostedAt time.Time `json:"posted_at"`
}

// Engagement is the raw interaction count of the tweet.
func (t Tweet) Engagement() float64 {
	return float64(t.Likes + t.Retweets + t.Replies + t.Quotes)
}

// Snapshot is one leaderboard observation of an author on a platform.
type Snapshot struct {
	Handle     string          `json:"handle"`
	Platform   string          `json:"platform"`
	TakenAt    time.Time       `json:"taken_at"`
	Rank       int             `json:"rank"`
	Score      float64         `json:"score"`
	ScoreDelta float64         `json:"score_delta"`
	Tweets     []Tweet         `json:"tweets,omitempty"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
}

// PerformanceRecord is realised performance of one piece of content, the raw material of training sets.
type PerformanceRecord struct {
	ContentID     string          `json:"content_id"`
	Handle        string          `json:"handle"`
	Text          string          `json:"text"`
	Category      string          `json:"category"`
	PostedAt      time.Time       `json:"posted_at"`
	Campaign      CampaignContext `json:"campaign"`
	SnapDelta     float64         `json:"snap_delta"`
	PositionDelta float64         `json:"position_delta"`
	ROI           float64         `json:"roi"`
	Success       bool            `json:"success"`
}

// ContentSample is a historical top-ranked post used for category pattern mining.
type ContentSample struct {
	Handle   string    `json:"handle"`
	Platform string    `json:"platform"`
	Text     string    `json:"text"`
	Rank     int       `json:"rank"`
	Score    float64   `json:"score"`
	PostedAt time.Time `json:"posted_at"`
}

// NormalizePlatform lowercases and trims a platform name.
func NormalizePlatform(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
