package webtool

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
	"github.com/praxian-ai/scout/internal/metrics"
)

// PageCache is a content-addressed page cache: local map in front of an
// optional Redis tier. Keys are derived from the page URL.
type PageCache struct {
	mu    sync.Mutex
	local map[string]cachedPage
	redis *circuitbreaker.RedisClient
	ttl   time.Duration
}

type cachedPage struct {
	page Page
	exp  time.Time
}

// NewPageCache creates a cache. redis may be nil for local-only caching.
func NewPageCache(redis *circuitbreaker.RedisClient, ttl time.Duration) *PageCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &PageCache{
		local: make(map[string]cachedPage),
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKey derives the storage key for a URL.
func CacheKey(url string) string {
	h := md5.Sum([]byte(url))
	return "page:" + hex.EncodeToString(h[:])
}

// Get returns the cached page for url if present and fresh.
func (c *PageCache) Get(ctx context.Context, url string) (*Page, bool) {
	key := CacheKey(url)

	c.mu.Lock()
	if entry, ok := c.local[key]; ok {
		if entry.exp.After(time.Now()) {
			c.mu.Unlock()
			metrics.ScrapeCacheHits.Inc()
			page := entry.page
			return &page, true
		}
		delete(c.local, key)
	}
	c.mu.Unlock()

	if c.redis != nil {
		if s, err := c.redis.Get(ctx, key); err == nil {
			var page Page
			if json.Unmarshal([]byte(s), &page) == nil {
				c.mu.Lock()
				c.local[key] = cachedPage{page: page, exp: time.Now().Add(c.ttl)}
				c.mu.Unlock()
				metrics.ScrapeCacheHits.Inc()
				return &page, true
			}
		}
	}

	metrics.ScrapeCacheMisses.Inc()
	return nil, false
}

// Set stores a page in both cache tiers.
func (c *PageCache) Set(ctx context.Context, page *Page) {
	key := CacheKey(page.URL)

	c.mu.Lock()
	c.local[key] = cachedPage{page: *page, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.redis != nil {
		if data, err := json.Marshal(page); err == nil {
			_ = c.redis.Set(ctx, key, data, c.ttl)
		}
	}
}
