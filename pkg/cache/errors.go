package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidCacheKey is returned for empty keys
	ErrInvalidCacheKey = errors.New("invalid cache key")
)
