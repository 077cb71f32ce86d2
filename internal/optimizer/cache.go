package optimizer

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// AnalysisCache holds analyses per (category, platform) for a bounded time.
type AnalysisCache interface {
	Get(key string) (*Analysis, bool)
	Add(key string, a *Analysis) bool
}

// NewAnalysisCache builds an expiring LRU holding at most size analyses for ttl each.
func NewAnalysisCache(size int, ttl time.Duration) *expirable.LRU[string, *Analysis] {
	if size <= 0 {
		size = 256
	}
	return expirable.NewLRU[string, *Analysis](size, nil, ttl)
}

func cacheKey(category, platform string) string {
	return category + "|" + platform
}
