package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"snapforecast/internal/domain"
)

// rawTweet accepts both the scraper's field names and the public API's *_count variants.
type rawTweet struct {
	ID           string  `json:"id"`
	TweetID      string  `json:"tweet_id"`
	Text         string  `json:"text"`
	Likes        float64 `json:"likes"`
	LikeCount    float64 `json:"like_count"`
	Retweets     float64 `json:"retweets"`
	RetweetCount float64 `json:"retweet_count"`
	Replies      float64 `json:"replies"`
	ReplyCount   float64 `json:"reply_count"`
	Quotes       float64 `json:"quotes"`
	QuoteCount   float64 `json:"quote_count"`
	CreatedAt    string  `json:"created_at"`
	PostedAt     string  `json:"posted_at"`
}

func decodeTweets(data []byte) ([]domain.Tweet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var raws []rawTweet
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode recent tweets: %w", err)
	}

	tweets := make([]domain.Tweet, 0, len(raws))
	for _, r := range raws {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		tweets = append(tweets, domain.Tweet{
			ID:       firstNonEmpty(r.ID, r.TweetID),
			Text:     text,
			Likes:    int(firstPositive(r.Likes, r.LikeCount)),
			Retweets: int(firstPositive(r.Retweets, r.RetweetCount)),
			Replies:  int(firstPositive(r.Replies, r.ReplyCount)),
			Quotes:   int(firstPositive(r.Quotes, r.QuoteCount)),
			PostedAt: parseTime(firstNonEmpty(r.PostedAt, r.CreatedAt)),
		})
	}
	return tweets, nil
}

// parseTime tolerates the layouts seen in scraped payloads; unknown layouts give the zero time.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", time.RubyDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// jsonColumn turns a nullable json/jsonb column into a RawMessage, dropping invalid documents.
func jsonColumn(b []byte) json.RawMessage {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
