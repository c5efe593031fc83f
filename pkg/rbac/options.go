package rbac

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/cache"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// DefaultPermissionTTL is how long a computed permission set stays cached
const DefaultPermissionTTL = 15 * time.Minute

// Option configures the services of this package
type Option func(*options)

type options struct {
	audit       audit.Logger
	logger      *observability.Logger
	now         func() time.Time
	cache       cache.Cache[PermissionSet]
	cacheTTL    time.Duration
	metrics     *observability.Metrics
	tracer      trace.Tracer
	permissions *PermissionRegistry
}

// WithAuditLogger records mutations and denials to l
func WithAuditLogger(l audit.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.audit = l
		}
	}
}

// WithLogger sets the service logger
func WithLogger(l *observability.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now, for expiry checks and timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCache memoizes permission sets in c for ttl (DefaultPermissionTTL when ttl <= 0)
func WithCache(c cache.Cache[PermissionSet], ttl time.Duration) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithMetrics records authorization metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer spans are started from
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithPermissionRegistry sets the registry gate requirements are checked against
func WithPermissionRegistry(r *PermissionRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.permissions = r
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		audit:       audit.NoopLogger{},
		logger:      observability.NewNopLogger(),
		now:         time.Now,
		cacheTTL:    DefaultPermissionTTL,
		tracer:      observability.Tracer(),
		permissions: DefaultPermissions(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		o.cache = cache.NewMemoryCache[PermissionSet](&cache.Config{
			MaxEntries: cache.DefaultConfig().MaxEntries,
			DefaultTTL: o.cacheTTL,
			Now:        o.now,
		})
	}
	return o
}
