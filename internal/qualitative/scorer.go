// Package qualitative turns free text into named numeric scores on a [0,10] scale by asking a
// text-analysis service, and absorbs that service's failures so callers can fall back to defaults.
package qualitative

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
)

const (
	// MinScore and MaxScore bound every axis value that leaves this package.
	MinScore = 0.0
	MaxScore = 10.0
)

var (
	// ErrParseFailure means the service answered with something other than a JSON object of axis scores.
	ErrParseFailure = errors.New("qualitative: unparseable score response")
	// ErrUnavailable means no call was attempted (no client configured or breaker open).
	ErrUnavailable = errors.New("qualitative: scoring service unavailable")
)

// Axis is one named score requested from the service.
type Axis struct {
	Name        string
	Description string
}

// Scores maps axis name to a clamped score.
type Scores map[string]float64

// Clone returns an independent copy.
func (s Scores) Clone() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Scorer scores text on the requested axes. Axes the service fails to score are absent from the result.
type Scorer interface {
	Score(ctx context.Context, text string, axes []Axis) (Scores, error)
}

// ContentAxes are the axes requested for every piece of content long enough to analyse.
var ContentAxes = []Axis{
	{Name: "content_quality", Description: "overall writing quality and substance"},
	{Name: "viral_potential", Description: "likelihood of wide resharing"},
	{Name: "engagement_potential", Description: "likelihood of replies, likes and quotes"},
	{Name: "originality", Description: "novelty of the take compared with typical posts"},
	{Name: "clarity", Description: "how easy the message is to understand"},
	{Name: "call_to_action", Description: "strength of any call to action"},
}

// NeutralDefaults are used in place of a service call for texts too short to analyse.
var NeutralDefaults = Scores{
	"content_quality":      5.0,
	"viral_potential":      3.0,
	"engagement_potential": 4.0,
}

// SentimentAxis scores free-form sentiment strings found in profile documents.
var SentimentAxis = Axis{Name: "sentiment_score", Description: "0 very negative, 5 neutral, 10 very positive"}

// CategoryMatchAxis scores how well a text belongs to a campaign category.
func CategoryMatchAxis(category string) Axis {
	return Axis{
		Name:        "category_match",
		Description: "how clearly the text belongs to the '" + strings.ToLower(category) + "' category",
	}
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// AxisNames returns the sorted axis names.
func AxisNames(axes []Axis) []string {
	names := make([]string, 0, len(axes))
	for _, a := range axes {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// CacheKey identifies a scoring call by content hash and axis list.
func CacheKey(text string, axes []Axis) string {
	sum := sha256.Sum256([]byte(text))
	return "qual:" + hex.EncodeToString(sum[:16]) + ":" + strings.Join(AxisNames(axes), ",")
}

// StaticScorer returns fixed scores for the requested axes. Handy for tests and offline runs.
type StaticScorer struct {
	Values Scores
	Err    error

	mu    sync.Mutex
	calls int
}

// Calls reports how many times Score ran.
func (s *StaticScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Score implements Scorer.
func (s *StaticScorer) Score(_ context.Context, _ string, axes []Axis) (Scores, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(Scores, len(axes))
	for _, a := range axes {
		if v, ok := s.Values[a.Name]; ok {
			out[a.Name] = Clamp(v)
		}
	}
	return out, nil
}
