package api

import (
	"context"
	"fmt"

	"github.com/platinummonkey/accessplane/pkg/cache"
	"github.com/platinummonkey/accessplane/pkg/config"
	"github.com/platinummonkey/accessplane/pkg/observability"
	"github.com/platinummonkey/accessplane/pkg/rbac"
)

const (
	// PermissionKeyPrefix namespaces permission sets in a shared Redis
	PermissionKeyPrefix = "accessplane:perm:"
	// RateLimitKeyPrefix namespaces rate limit windows in a shared Redis
	RateLimitKeyPrefix = "accessplane:ratelimit"
)

// openCache builds the permission-set cache for the configured mode. In local
// mode a Redis URL adds cross-instance invalidation; in shared mode the sets
// live in Redis.
func (s *Server) openCache(ctx context.Context) (cache.Cache[rbac.PermissionSet], error) {
	cfg := s.config.Cache

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL, cache.RedisOptions{
			PoolSize:   cfg.RedisPoolSize,
			MaxRetries: cfg.RedisMaxRetries,
		})
		if err != nil {
			return nil, err
		}
		s.redis = client
	}

	if cfg.Mode == config.CacheModeShared {
		if s.redis == nil {
			return nil, fmt.Errorf("shared cache mode requires a redis URL")
		}
		s.health.AddCheck("redis", true, observability.RedisCheck(s.redis))
		s.logger.Info("Permission sets cached in Redis")
		return cache.NewRedisCache[rbac.PermissionSet](s.redis, PermissionKeyPrefix, cfg.TTL), nil
	}

	local := cache.NewMemoryCache[rbac.PermissionSet](&cache.Config{
		MaxEntries: cfg.Size,
		DefaultTTL: cfg.TTL,
	})

	sweeper, err := cache.NewSweeper(cfg.SweepSchedule, s.logger, local)
	if err != nil {
		return nil, err
	}
	s.sweeper = sweeper

	if s.redis == nil {
		return local, nil
	}

	s.health.AddCheck("redis", false, observability.RedisCheck(s.redis))
	s.invalidator = cache.NewInvalidator(s.redis, cache.DefaultInvalidationChannel, local, s.logger)
	if err := s.invalidator.Start(ctx); err != nil {
		return nil, err
	}
	s.logger.WithField("channel", cache.DefaultInvalidationChannel).Info("Permission cache invalidations broadcast over Redis")
	return cache.NewBroadcastCache[rbac.PermissionSet](local, s.invalidator, s.logger), nil
}
