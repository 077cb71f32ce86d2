package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapforecast/internal/experience"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db, nil), mock
}

func TestRecentSnapshotsDecodesJSONColumns(t *testing.T) {
	repo, mock := newMock(t)
	taken := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	asOf := taken.Add(2 * time.Hour)

	mock.ExpectQuery(`(?s)FROM leaderboard_snapshots.*snapshot_at <= \$3`).
		WithArgs("alice", "cookie.fun", asOf, 5).
		WillReturnRows(sqlmock.NewRows([]string{"handle", "platform", "snapshot_at", "rank", "score", "score_delta", "recent_tweets", "llm_analysis"}).
			AddRow("alice", "cookie.fun", taken, 12, 340.5, 20.0,
				`[{"id":"1","text":"gm","like_count":7,"retweets":2,"created_at":"2025-05-01T10:00:00Z"},{"text":"  "}]`,
				`{"content_quality": 7}`).
			AddRow("alice", "cookie.fun", taken.Add(-time.Hour), nil, nil, nil, `not json`, nil))

	snaps, err := repo.RecentSnapshots(context.Background(), "@Alice", "Cookie.Fun", asOf, 5)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	first := snaps[0]
	assert.Equal(t, 12, first.Rank)
	assert.Equal(t, 340.5, first.Score)
	require.Len(t, first.Tweets, 1)
	assert.Equal(t, 7, first.Tweets[0].Likes)
	assert.Equal(t, 2, first.Tweets[0].Retweets)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), first.Tweets[0].PostedAt)
	assert.JSONEq(t, `{"content_quality": 7}`, string(first.Analysis))

	second := snaps[1]
	assert.Zero(t, second.Rank)
	assert.Empty(t, second.Tweets)
	assert.Nil(t, second.Analysis)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorProfileWithPositions(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM author_profiles").
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{
			"handle", "followers_count", "following_count", "tweet_count", "verified", "account_created_at",
			"engagement_rate", "mindshare", "engagement_patterns", "sentiment_distribution", "badges", "network_metrics",
		}).AddRow("bob", 1500, 300, 4200, true, created, 0.03, 1.2, `{"peak_hour": 18}`, nil, `["og"]`, `{bad`))
	mock.ExpectQuery(`(?s)FROM leaderboard_snapshots.*ORDER BY snapshot_at DESC`).
		WithArgs("bob", positionsLimit).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_at", "rank", "score"}).
			AddRow(created.AddDate(3, 1, 0), 8, 180.0).
			AddRow(created.AddDate(3, 0, 0), 25, 100.0))

	p, err := repo.AuthorProfile(context.Background(), "Bob")
	require.NoError(t, err)

	assert.Equal(t, 1500, p.Followers)
	assert.True(t, p.Verified)
	assert.Equal(t, created, p.AccountCreatedAt)
	assert.JSONEq(t, `{"peak_hour": 18}`, string(p.EngagementPatterns))
	assert.Nil(t, p.NetworkMetrics, "invalid json columns are dropped")
	require.Len(t, p.Positions, 2)
	assert.Equal(t, 25, p.Positions[0].Rank, "positions come back oldest first")
	assert.Equal(t, 8, p.Positions[1].Rank)
	best, ok := p.BestRank()
	assert.True(t, ok)
	assert.Equal(t, 8, best)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorProfileUnknownHandle(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM author_profiles").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AuthorProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, experience.ErrIdentityUnresolvable)

	_, err = repo.AuthorProfile(context.Background(), "  ")
	assert.ErrorIs(t, err, experience.ErrIdentityUnresolvable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorProfileQueryFailure(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM author_profiles").
		WithArgs("bob").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.AuthorProfile(context.Background(), "bob")
	require.Error(t, err)
	assert.NotErrorIs(t, err, experience.ErrIdentityUnresolvable)
}

func TestCampaignNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM campaigns").
		WithArgs("c-404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Campaign(context.Background(), "c-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignNormalisesPlatform(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM campaigns").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "reward_pool", "competition_level", "category", "platform", "timeframe"}).
			AddRow("c-1", 50000.0, 0.7, "defi", " Cookie.Fun ", "30d"))

	c, err := repo.Campaign(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "cookie.fun", c.Platform)
	assert.Equal(t, 50000.0, c.RewardPool)
}

func TestPerformanceRecords(t *testing.T) {
	repo, mock := newMock(t)
	posted := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM content_performance").
		WithArgs("cookie.fun", sqlmock.AnyArg(), sqlmock.AnyArg(), defaultRecordsLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"content_id", "handle", "text", "category", "posted_at",
			"id", "reward_pool", "competition_level", "category", "platform", "timeframe",
			"snap_delta", "position_delta", "roi", "success",
		}).AddRow("post-1", "alice", "gm defi", "defi", posted,
			"c-1", 10000.0, 0.5, "defi", "Cookie.Fun", "7d",
			150.0, 3.0, 1.4, true))

	recs, err := repo.PerformanceRecords(context.Background(), PerformanceFilter{Platform: "cookie.fun", Categories: []string{" DeFi "}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 150.0, recs[0].SnapDelta)
	assert.True(t, recs[0].Success)
	assert.Equal(t, "cookie.fun", recs[0].Campaign.Platform)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopContent(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM leaderboard_content").
		WithArgs("kaito", 200).
		WillReturnRows(sqlmock.NewRows([]string{"handle", "platform", "text", "rank", "score", "posted_at"}).
			AddRow("a", "kaito", "thread", 1, 900.0, nil))

	samples, err := repo.TopContent(context.Background(), "KAITO", 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].PostedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, nil)
	assert.Error(t, err)
}
