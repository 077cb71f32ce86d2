package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"

	"snapforecast/internal/domain"
	"snapforecast/internal/experience"
	"snapforecast/internal/logging"
)

const (
	positionsLimit       = 500
	defaultRecordsLimit  = 5000
	defaultTopContentMax = 200
)

// Repository is the read-only view over the tables owned by the collection services.
type Repository struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRepository wraps an open pool.
func NewRepository(db *sql.DB, logger logging.Logger) *Repository {
	return &Repository{db: db, logger: logging.OrDiscard(logger)}
}

// NormalizeHandle lowercases a handle and strips a leading "@".
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(handle)), "@")
}

const recentSnapshotsQuery = `
SELECT handle, platform, snapshot_at, rank, score, score_delta, recent_tweets, llm_analysis
FROM leaderboard_snapshots
WHERE handle = $1 AND ($2 = '' OR platform = $2) AND snapshot_at <= $3
ORDER BY snapshot_at DESC
LIMIT $4`

// RecentSnapshots returns up to limit snapshots for handle taken at or before asOf, newest first.
// An empty platform matches all.
func (r *Repository) RecentSnapshots(ctx context.Context, handle, platform string, asOf time.Time, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.QueryContext(ctx, recentSnapshotsQuery,
		NormalizeHandle(handle), domain.NormalizePlatform(platform), asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var (
			s        domain.Snapshot
			rank     sql.NullInt64
			score    sql.NullFloat64
			delta    sql.NullFloat64
			tweets   []byte
			analysis []byte
		)
		if err := rows.Scan(&s.Handle, &s.Platform, &s.TakenAt, &rank, &score, &delta, &tweets, &analysis); err != nil {
			return nil, fmt.Errorf("store: scan snapshot: %w", err)
		}
		s.Rank = int(rank.Int64)
		s.Score = score.Float64
		s.ScoreDelta = delta.Float64
		s.Analysis = jsonColumn(analysis)
		if s.Tweets, err = decodeTweets(tweets); err != nil {
			r.logger.WithError(err).WithField("handle", s.Handle).Debug("snapshot tweets dropped")
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate snapshots: %w", err)
	}
	return snaps, nil
}

const authorProfileQuery = `
SELECT handle, followers_count, following_count, tweet_count, verified, account_created_at,
       engagement_rate, mindshare, engagement_patterns, sentiment_distribution, badges, network_metrics
FROM author_profiles
WHERE handle = $1`

const positionsQuery = `
SELECT snapshot_at, rank, score
FROM leaderboard_snapshots
WHERE handle = $1 AND rank > 0
ORDER BY snapshot_at DESC
LIMIT $2`

// AuthorProfile loads the profile aggregates plus the leaderboard history of handle.
// An unknown handle yields experience.ErrIdentityUnresolvable.
func (r *Repository) AuthorProfile(ctx context.Context, handle string) (domain.AuthorProfile, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return domain.AuthorProfile{}, fmt.Errorf("%w: empty handle", experience.ErrIdentityUnresolvable)
	}

	var (
		p          domain.AuthorProfile
		followers  sql.NullInt64
		following  sql.NullInt64
		tweets     sql.NullInt64
		verified   sql.NullBool
		createdAt  sql.NullTime
		engagement sql.NullFloat64
		mindshare  sql.NullFloat64
		patterns   []byte
		sentiment  []byte
		badges     []byte
		network    []byte
	)
	err := r.db.QueryRowContext(ctx, authorProfileQuery, handle).Scan(
		&p.Handle, &followers, &following, &tweets, &verified, &createdAt,
		&engagement, &mindshare, &patterns, &sentiment, &badges, &network,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorProfile{}, fmt.Errorf("%w: %s", experience.ErrIdentityUnresolvable, handle)
	}
	if err != nil {
		return domain.AuthorProfile{}, fmt.Errorf("store: author profile: %w", err)
	}
	p.Followers = int(followers.Int64)
	p.Following = int(following.Int64)
	p.Tweets = int(tweets.Int64)
	p.Verified = verified.Bool
	if createdAt.Valid {
		p.AccountCreatedAt = createdAt.Time.UTC()
	}
	p.EngagementRate = engagement.Float64
	p.Mindshare = mindshare.Float64
	p.EngagementPatterns = jsonColumn(patterns)
	p.SentimentDistribution = jsonColumn(sentiment)
	p.Badges = jsonColumn(badges)
	p.NetworkMetrics = jsonColumn(network)

	positions, err := r.positions(ctx, handle)
	if err != nil {
		return domain.AuthorProfile{}, err
	}
	p.Positions = positions
	return p, nil
}

func (r *Repository) positions(ctx context.Context, handle string) ([]domain.LeaderboardPosition, error) {
	rows, err := r.db.QueryContext(ctx, positionsQuery, handle, positionsLimit)
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard positions: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardPosition
	for rows.Next() {
		var (
			pos   domain.LeaderboardPosition
			score sql.NullFloat64
		)
		if err := rows.Scan(&pos.Timestamp, &pos.Rank, &score); err != nil {
			return nil, fmt.Errorf("store: scan position: %w", err)
		}
		pos.Score = score.Float64
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate positions: %w", err)
	}
	// Newest rows win the limit; callers get them oldest first.
	slices.Reverse(out)
	return out, nil
}

const campaignQuery = `
SELECT id, COALESCE(reward_pool, 0), COALESCE(competition_level, 0), COALESCE(category, ''), platform, COALESCE(timeframe, '')
FROM campaigns
WHERE id = $1`

// Campaign loads one campaign by id.
func (r *Repository) Campaign(ctx context.Context, id string) (domain.CampaignContext, error) {
	var c domain.CampaignContext
	err := r.db.QueryRowContext(ctx, campaignQuery, id).Scan(
		&c.ID, &c.RewardPool, &c.CompetitionLevel, &c.Category, &c.Platform, &c.Timeframe,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	if err != nil {
		return c, fmt.Errorf("store: campaign: %w", err)
	}
	c.Platform = domain.NormalizePlatform(c.Platform)
	return c, nil
}

// PerformanceFilter narrows the content-performance rows used for training.
type PerformanceFilter struct {
	Platform   string
	Categories []string
	Since      time.Time
	Limit      int
}

const performanceQuery = `
SELECT p.content_id, p.handle, COALESCE(p.text, ''), COALESCE(p.category, c.category, ''), p.posted_at,
       c.id, COALESCE(c.reward_pool, 0), COALESCE(c.competition_level, 0), COALESCE(c.category, ''),
       c.platform, COALESCE(c.timeframe, ''),
       COALESCE(p.snap_delta, 0), COALESCE(p.position_delta, 0), COALESCE(p.roi, 0), COALESCE(p.success, false)
FROM content_performance p
JOIN campaigns c ON c.id = p.campaign_id
WHERE c.platform = $1
  AND ($2::text[] IS NULL OR COALESCE(p.category, c.category) = ANY($2))
  AND p.posted_at >= $3
ORDER BY p.posted_at DESC
LIMIT $4`

// PerformanceRecords returns realised content performance for one platform, newest first.
func (r *Repository) PerformanceRecords(ctx context.Context, f PerformanceFilter) ([]domain.PerformanceRecord, error) {
	if f.Limit <= 0 {
		f.Limit = defaultRecordsLimit
	}
	var categories []string
	for _, c := range f.Categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			categories = append(categories, c)
		}
	}

	rows, err := r.db.QueryContext(ctx, performanceQuery,
		domain.NormalizePlatform(f.Platform), pq.Array(categories), f.Since.UTC(), f.Limit)
	if err != nil {
		return nil, fmt.Errorf("store: performance records: %w", err)
	}
	defer rows.Close()

	var out []domain.PerformanceRecord
	for rows.Next() {
		var rec domain.PerformanceRecord
		if err := rows.Scan(
			&rec.ContentID, &rec.Handle, &rec.Text, &rec.Category, &rec.PostedAt,
			&rec.Campaign.ID, &rec.Campaign.RewardPool, &rec.Campaign.CompetitionLevel, &rec.Campaign.Category,
			&rec.Campaign.Platform, &rec.Campaign.Timeframe,
			&rec.SnapDelta, &rec.PositionDelta, &rec.ROI, &rec.Success,
		); err != nil {
			return nil, fmt.Errorf("store: scan performance record: %w", err)
		}
		rec.Campaign.Platform = domain.NormalizePlatform(rec.Campaign.Platform)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate performance records: %w", err)
	}
	return out, nil
}

const topContentQuery = `
SELECT handle, platform, text, rank, COALESCE(score, 0), posted_at
FROM leaderboard_content
WHERE platform = $1 AND rank > 0
ORDER BY rank ASC, score DESC
LIMIT $2`

// TopContent returns the best-ranked historical posts on a platform.
func (r *Repository) TopContent(ctx context.Context, platform string, limit int) ([]domain.ContentSample, error) {
	if limit <= 0 {
		limit = defaultTopContentMax
	}
	rows, err := r.db.QueryContext(ctx, topContentQuery, domain.NormalizePlatform(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("store: top content: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentSample
	for rows.Next() {
		var (
			s      domain.ContentSample
			posted sql.NullTime
		)
		if err := rows.Scan(&s.Handle, &s.Platform, &s.Text, &s.Rank, &s.Score, &posted); err != nil {
			return nil, fmt.Errorf("store: scan content sample: %w", err)
		}
		if posted.Valid {
			s.PostedAt = posted.Time.UTC()
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate content samples: %w", err)
	}
	return out, nil
}
