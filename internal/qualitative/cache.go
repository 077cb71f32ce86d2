package qualitative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"snapforecast/internal/logging"
	"snapforecast/internal/metrics"
)

// ScoreCache stores scoring results keyed by CacheKey. Misses and backend errors look the same to callers.
type ScoreCache interface {
	Get(ctx context.Context, key string) (Scores, bool)
	Set(ctx context.Context, key string, scores Scores)
}

type lruEntry struct {
	scores    Scores
	expiresAt time.Time
}

// LRUCache is a bounded in-process cache with a per-entry TTL.
type LRUCache struct {
	entries *lru.Cache[string, lruEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache builds a cache holding at most size entries for ttl each (ttl <= 0 means no expiry).
func NewLRUCache(size int, ttl time.Duration) (*LRUCache, error) {
	if size <= 0 {
		size = 1024
	}
	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("qualitative: lru cache: %w", err)
	}
	return &LRUCache{entries: entries, ttl: ttl, now: time.Now}, nil
}

// Get implements ScoreCache.
func (c *LRUCache) Get(_ context.Context, key string) (Scores, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.scores.Clone(), true
}

// Set implements ScoreCache.
func (c *LRUCache) Set(_ context.Context, key string, scores Scores) {
	e := lruEntry{scores: scores.Clone()}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries.Add(key, e)
}

// Len reports the number of cached entries.
func (c *LRUCache) Len() int { return c.entries.Len() }

// RedisCache shares scores across processes through Redis.
type RedisCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
	logger logging.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client goredis.UniversalClient, ttl time.Duration, logger logging.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logging.OrDiscard(logger)}
}

// Get implements ScoreCache.
func (c *RedisCache) Get(ctx context.Context, key string) (Scores, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("score cache read failed")
		}
		return nil, false
	}
	var scores Scores
	if err := json.Unmarshal(data, &scores); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("score cache entry corrupt")
		return nil, false
	}
	return scores, true
}

// Set implements ScoreCache.
func (c *RedisCache) Set(ctx context.Context, key string, scores Scores) {
	data, err := json.Marshal(scores)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("score cache write failed")
	}
}

// CachedScorer memoises another Scorer by (content hash, axis list) and collapses concurrent identical calls.
type CachedScorer struct {
	next    Scorer
	cache   ScoreCache
	metrics *metrics.Metrics
	group   singleflight.Group
}

// NewCachedScorer wraps next. Only results with at least one axis are cached.
func NewCachedScorer(next Scorer, cache ScoreCache, m *metrics.Metrics) *CachedScorer {
	return &CachedScorer{next: next, cache: cache, metrics: metrics.OrNop(m)}
}

// Score implements Scorer.
func (c *CachedScorer) Score(ctx context.Context, text string, axes []Axis) (Scores, error) {
	key := CacheKey(text, axes)
	if scores, ok := c.cache.Get(ctx, key); ok {
		c.metrics.QualitativeCalls.WithLabelValues("hit").Inc()
		return scores, nil
	}
	c.metrics.QualitativeCalls.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		scores, err := c.next.Score(ctx, text, axes)
		if len(scores) > 0 {
			c.cache.Set(ctx, key, scores)
		}
		return scores, err
	})
	scores, _ := v.(Scores)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrParseFailure) {
			outcome = "parse_failure"
		}
		c.metrics.QualitativeCalls.WithLabelValues(outcome).Inc()
	}
	return scores.Clone(), err
}
