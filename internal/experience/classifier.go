// Package experience scores how much reliable history an author has and picks a prediction strategy.
package experience

import (
	"context"
	"errors"
	"time"

	"snapforecast/internal/domain"
	"snapforecast/internal/logging"
)

// ErrIdentityUnresolvable is returned by profile sources when an identity cannot be looked up at all.
var ErrIdentityUnresolvable = errors.New("identity unresolvable")

// Signals are the inputs to the experience score.
type Signals struct {
	AccountAgeDays int     `json:"account_age_days"`
	Followers      int     `json:"followers_count"`
	Tweets         int     `json:"tweet_count"`
	EngagementRate float64 `json:"engagement_rate"`
	OnLeaderboard  bool    `json:"on_leaderboard"`
	BestRank       int     `json:"best_rank,omitempty"`
}

// SignalsFromProfile derives Signals from a stored profile.
func SignalsFromProfile(p domain.AuthorProfile, now time.Time) Signals {
	best, ok := p.BestRank()
	return Signals{
		AccountAgeDays: p.AccountAgeDays(now),
		Followers:      p.Followers,
		Tweets:         p.Tweets,
		EngagementRate: p.EngagementRate,
		OnLeaderboard:  ok,
		BestRank:       best,
	}
}

// Breakdown is the per-signal share of the score.
type Breakdown struct {
	AccountAge  int `json:"account_age"`
	Followers   int `json:"followers"`
	Tweets      int `json:"tweets"`
	Engagement  int `json:"engagement"`
	Leaderboard int `json:"leaderboard"`
}

// Total sums the breakdown.
func (b Breakdown) Total() int {
	return b.AccountAge + b.Followers + b.Tweets + b.Engagement + b.Leaderboard
}

const (
	leaderboardBonus = 5
	topRankBonus     = 2
	topRank          = 10
)

// Score computes the integer experience score. It is monotonic in every signal.
func Score(s Signals) (int, Breakdown) {
	b := Breakdown{
		AccountAge: steps(float64(s.AccountAgeDays), 180, 365, 730),
		Followers:  steps(float64(s.Followers), 100, 1000, 10000),
		Tweets:     steps(float64(s.Tweets), 100, 1000),
		Engagement: steps(s.EngagementRate, 0.01, 0.05),
	}
	if s.OnLeaderboard {
		b.Leaderboard = leaderboardBonus
		if s.BestRank > 0 && s.BestRank <= topRank {
			b.Leaderboard += topRankBonus
		}
	}
	return b.Total(), b
}

// steps counts how many ascending thresholds v reaches.
func steps(v float64, thresholds ...float64) int {
	n := 0
	for _, t := range thresholds {
		if v >= t {
			n++
		}
	}
	return n
}

// Result is one classification.
type Result struct {
	Handle    string    `json:"handle"`
	Tier      Tier      `json:"tier"`
	Score     int       `json:"score"`
	Strategy  Strategy  `json:"strategy"`
	Signals   Signals   `json:"signals"`
	Breakdown Breakdown `json:"breakdown"`
	Reason    string    `json:"reason,omitempty"`
}

// Unresolved is the result for an identity that could not be looked up.
func Unresolved(handle, reason string) Result {
	return Result{Handle: handle, Tier: TierUnknown, Strategy: ConservativeBaseline, Reason: reason}
}

// ClassifyProfile classifies an already loaded profile.
func ClassifyProfile(p domain.AuthorProfile, now time.Time) Result {
	signals := SignalsFromProfile(p, now)
	score, breakdown := Score(signals)
	tier := TierFor(score)
	return Result{
		Handle:    p.Handle,
		Tier:      tier,
		Score:     score,
		Strategy:  StrategyFor(tier, signals.OnLeaderboard),
		Signals:   signals,
		Breakdown: breakdown,
	}
}

// ProfileSource loads author profiles.
type ProfileSource interface {
	AuthorProfile(ctx context.Context, handle string) (domain.AuthorProfile, error)
}

// Classifier resolves identities through a ProfileSource.
type Classifier struct {
	Profiles ProfileSource
	Now      func() time.Time
	Logger   logging.Logger
}

// NewClassifier builds a classifier.
func NewClassifier(profiles ProfileSource, logger logging.Logger) *Classifier {
	return &Classifier{Profiles: profiles, Now: time.Now, Logger: logging.OrDiscard(logger)}
}

// Classify never fails: any lookup failure yields an unknown tier with the conservative strategy.
func (c *Classifier) Classify(ctx context.Context, handle string) Result {
	if handle == "" || c.Profiles == nil {
		return Unresolved(handle, "no identity")
	}
	profile, err := c.Profiles.AuthorProfile(ctx, handle)
	if err != nil {
		logger := logging.OrDiscard(c.Logger).WithError(err).WithField("handle", handle)
		if errors.Is(err, ErrIdentityUnresolvable) {
			logger.Debug("identity unresolvable")
			return Unresolved(handle, "identity unresolvable")
		}
		logger.Warn("profile lookup failed")
		return Unresolved(handle, "profile lookup failed")
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	res := ClassifyProfile(profile, now)
	if res.Handle == "" {
		res.Handle = handle
	}
	return res
}
