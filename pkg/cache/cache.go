package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a TTL key-value store. Get returns ErrCacheMiss for absent and
// expired keys; a miss is not a failure.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	Expired   int64
	HitRate   float64
	ItemCount int64
}

// Config holds memory cache configuration
type Config struct {
	MaxEntries int              // 0 means unbounded
	DefaultTTL time.Duration    // used when Set is called with ttl <= 0; 0 means no expiry
	Now        func() time.Time // clock, defaults to time.Now
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: 10000,
		DefaultTTL: 15 * time.Minute,
		Now:        time.Now,
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache implements Cache with an in-process LRU and lazy per-entry expiry
type MemoryCache[V any] struct {
	config  *Config
	cache   *lru.LRU[string, entry[V]]
	metrics *metrics
	mu      sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache[V any](config *Config) *MemoryCache[V] {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxEntries < 0 {
		config.MaxEntries = 0
	}

	// expiry is tracked per entry, so the LRU itself never expires anything
	cache := lru.NewLRU[string, entry[V]](config.MaxEntries, nil, 0)

	return &MemoryCache[V]{
		config:  config,
		cache:   cache,
		metrics: &metrics{},
	}
}

// Get returns the value stored under key, evicting it if it has expired
func (c *MemoryCache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrInvalidCacheKey
	}

	c.mu.RLock()
	e, ok := c.cache.Get(key)
	c.mu.RUnlock()

	if !ok {
		c.metrics.misses.Add(1)
		return zero, ErrCacheMiss
	}

	if e.expired(c.config.Now()) {
		c.evictIfExpired(key)
		c.metrics.misses.Add(1)
		return zero, ErrCacheMiss
	}

	c.metrics.hits.Add(1)
	return e.value, nil
}

// Set stores value under key for ttl, or the configured default when ttl <= 0
func (c *MemoryCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidCacheKey
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.config.Now().Add(ttl)
	}

	c.mu.Lock()
	c.cache.Add(key, e)
	c.mu.Unlock()
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (c *MemoryCache[V]) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.cache.Remove(key)
	}
	return nil
}

// Clear removes every entry
func (c *MemoryCache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.cache.Purge()
	c.mu.Unlock()
	return nil
}

// Sweep removes every expired entry and returns how many were removed
func (c *MemoryCache[V]) Sweep() int {
	now := c.config.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.cache.Keys() {
		e, ok := c.cache.Peek(key)
		if ok && e.expired(now) {
			c.cache.Remove(key)
			removed++
		}
	}
	c.metrics.expired.Add(int64(removed))
	return removed
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache[V]) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics
func (c *MemoryCache[V]) Stats() Stats {
	stats := Stats{
		Hits:      c.metrics.hits.Load(),
		Misses:    c.metrics.misses.Load(),
		Expired:   c.metrics.expired.Load(),
		ItemCount: int64(c.cache.Len()),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// evictIfExpired re-checks under the write lock so a concurrent Set is not lost
func (c *MemoryCache[V]) evictIfExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache.Peek(key); ok && e.expired(c.config.Now()) {
		c.cache.Remove(key)
		c.metrics.expired.Add(1)
	}
}

// metrics tracks cache metrics
type metrics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
}
