package features

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"snapforecast/internal/domain"
	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
	"snapforecast/internal/qualitative"
)

// DefaultMinAnalysisLength is the rune count below which text is not sent for qualitative scoring.
const DefaultMinAnalysisLength = 20

// Feature groups, used as the label on degradation metrics and logs.
const (
	GroupText        = "text"
	GroupKeywords    = "keywords"
	GroupQualitative = "qualitative"
	GroupHistory     = "history"
	GroupProfile     = "profile"
	GroupCampaign    = "campaign"
	GroupTemporal    = "temporal"
)

// HistorySource is the read surface for author history. Implementations may return an error for
// unknown identities; the extractor treats any error as a degraded group.
// RecentSnapshots must not return snapshots taken after asOf.
type HistorySource interface {
	RecentSnapshots(ctx context.Context, handle, platform string, asOf time.Time, limit int) ([]domain.Snapshot, error)
	AuthorProfile(ctx context.Context, handle string) (domain.AuthorProfile, error)
}

// CampaignSource looks campaigns up by id.
type CampaignSource interface {
	Campaign(ctx context.Context, id string) (domain.CampaignContext, error)
}

// Request is one extraction input. Identity and Campaign are optional; a zero At means now.
// CampaignID is resolved through the extractor's CampaignSource when Campaign is nil.
type Request struct {
	Text       string                  `json:"text"`
	Identity   string                  `json:"identity,omitempty"`
	Platform   string                  `json:"platform,omitempty"`
	Campaign   *domain.CampaignContext `json:"campaign,omitempty"`
	CampaignID string                  `json:"campaign_id,omitempty"`
	ImageCount int                     `json:"image_count,omitempty"`
	At         time.Time               `json:"at"`
}

// Extractor builds feature vectors. The zero value works without history or qualitative scoring.
type Extractor struct {
	Scorer            qualitative.Scorer
	History           HistorySource
	Campaigns         CampaignSource
	MinAnalysisLength int
	Now               func() time.Time
	Logger            logging.Logger
	Metrics           *metrics.Metrics
}

// NewExtractor wires an extractor with default thresholds.
func NewExtractor(scorer qualitative.Scorer, history HistorySource, logger logging.Logger, m *metrics.Metrics) *Extractor {
	return &Extractor{
		Scorer:            scorer,
		History:           history,
		MinAnalysisLength: DefaultMinAnalysisLength,
		Now:               time.Now,
		Logger:            logging.OrDiscard(logger),
		Metrics:           metrics.OrNop(m),
	}
}

// Extract never fails. A group whose sub-step fails is omitted and counted as degraded.
// History only sees snapshots taken at or before At; profile aggregates are the stored current values.
func (e *Extractor) Extract(ctx context.Context, req Request) *Vector {
	at := req.At
	if at.IsZero() {
		at = e.now()
	}
	campaign := e.ResolveCampaign(ctx, req)

	v := NewVector()
	v.Merge(textFeatures(req.Text, req.ImageCount))
	v.Merge(keywordFeatures(req.Text))

	if q, err := e.QualitativeScores(ctx, req.Text); err != nil {
		e.degrade(GroupQualitative, err)
	} else {
		v.Merge(q)
	}

	if handle := strings.TrimSpace(req.Identity); handle != "" && e.History != nil {
		platform := req.Platform
		if platform == "" && campaign != nil {
			platform = campaign.Platform
		}
		snaps, err := e.History.RecentSnapshots(ctx, handle, domain.NormalizePlatform(platform), at, HistoryLimit)
		if err != nil {
			e.degrade(GroupHistory, err)
		} else {
			v.Merge(historyFeatures(snaps))
		}

		profile, err := e.History.AuthorProfile(ctx, handle)
		if err != nil {
			e.degrade(GroupProfile, err)
		} else {
			v.Merge(e.profileFeatures(ctx, profile))
		}
	}

	if campaign != nil {
		v.Merge(campaignFeatures(*campaign, req.Platform))
	} else if req.Platform != "" {
		v.Set("platform_code", float64(PlatformCode(req.Platform)))
	}

	v.Merge(temporalFeatures(at))
	return v
}

// ResolveCampaign returns req.Campaign, or the campaign named by req.CampaignID. A failed lookup
// degrades the campaign group and yields nil.
func (e *Extractor) ResolveCampaign(ctx context.Context, req Request) *domain.CampaignContext {
	if req.Campaign != nil {
		return req.Campaign
	}
	id := strings.TrimSpace(req.CampaignID)
	if id == "" {
		return nil
	}
	if e.Campaigns == nil {
		e.degrade(GroupCampaign, errors.New("no campaign source"))
		return nil
	}
	c, err := e.Campaigns.Campaign(ctx, id)
	if err != nil {
		e.degrade(GroupCampaign, err)
		return nil
	}
	return &c
}

// QualitativeScores scores text on every content axis through the extractor's scorer. Text shorter than
// MinAnalysisLength gets the neutral defaults without a scorer call.
func (e *Extractor) QualitativeScores(ctx context.Context, text string) (*Vector, error) {
	minLen := e.MinAnalysisLength
	if minLen <= 0 {
		minLen = DefaultMinAnalysisLength
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minLen {
		e.metrics().QualitativeCalls.WithLabelValues("short_text").Inc()
		return FromMap(qualitative.NeutralDefaults), nil
	}
	if e.Scorer == nil {
		return nil, qualitative.ErrUnavailable
	}

	scores, err := e.Scorer.Score(ctx, text, qualitative.ContentAxes)
	if len(scores) == 0 {
		if err == nil {
			err = qualitative.ErrParseFailure
		}
		return nil, err
	}
	if err != nil {
		e.logger().WithError(err).Debug("qualitative scoring returned partial axes")
	}
	v := NewVector()
	for _, axis := range qualitative.ContentAxes {
		if s, ok := scores[axis.Name]; ok {
			v.Set(axis.Name, qualitative.Clamp(s))
		}
	}
	return v, nil
}

func (e *Extractor) profileFeatures(ctx context.Context, p domain.AuthorProfile) *Vector {
	v := NewVector()
	v.Set("profile_followers", float64(p.Followers))
	v.Set("profile_following", float64(p.Following))
	v.Set("profile_tweets", float64(p.Tweets))
	v.SetBool("profile_verified", p.Verified)
	v.Set("profile_account_age_days", float64(p.AccountAgeDays(e.now())))
	v.Set("profile_engagement_rate", p.EngagementRate)
	v.Set("profile_mindshare", p.Mindshare)

	docs := []struct {
		name string
		raw  []byte
	}{
		{"profile_engagement_patterns", p.EngagementPatterns},
		{"profile_sentiment_distribution", p.SentimentDistribution},
		{"profile_badges", p.Badges},
		{"profile_network_metrics", p.NetworkMetrics},
	}
	for _, doc := range docs {
		items, err := Flatten(doc.name, doc.raw)
		if err != nil {
			e.degrade(GroupProfile, err)
			continue
		}
		for _, item := range items {
			switch item.Kind {
			case Numeric, Count:
				v.Set(item.Name, item.Value)
			case Textual:
				if score, ok := e.scoreSentiment(ctx, item.Text); ok {
					v.Set(item.Name, score)
				}
			}
		}
	}
	return v
}

func (e *Extractor) scoreSentiment(ctx context.Context, text string) (float64, bool) {
	if e.Scorer == nil {
		return 0, false
	}
	scores, err := e.Scorer.Score(ctx, text, []qualitative.Axis{qualitative.SentimentAxis})
	s, ok := scores[qualitative.SentimentAxis.Name]
	if err != nil || !ok {
		e.logger().WithError(err).WithField("axis", qualitative.SentimentAxis.Name).Debug("sentiment leaf dropped")
		return 0, false
	}
	return qualitative.Clamp(s), true
}

func (e *Extractor) degrade(group string, err error) {
	e.metrics().FeatureDegradations.WithLabelValues(group).Inc()
	entry := e.logger().WithError(err).WithField("feature_group", group)
	if errors.Is(err, qualitative.ErrUnavailable) {
		entry.Debug("feature group skipped")
		return
	}
	entry.Warn("feature group degraded")
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Extractor) logger() logging.Logger { return logging.OrDiscard(e.Logger) }

func (e *Extractor) metrics() *metrics.Metrics { return metrics.OrNop(e.Metrics) }
