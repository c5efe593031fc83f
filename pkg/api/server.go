package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/auth"
	"github.com/platinummonkey/accessplane/pkg/cache"
	"github.com/platinummonkey/accessplane/pkg/config"
	"github.com/platinummonkey/accessplane/pkg/httputil"
	"github.com/platinummonkey/accessplane/pkg/middleware"
	"github.com/platinummonkey/accessplane/pkg/observability"
	"github.com/platinummonkey/accessplane/pkg/rbac"
)

const (
	// MaxRequestBytes caps request bodies
	MaxRequestBytes = 1 << 20

	// DBStatsInterval is how often pool statistics are copied into metrics
	DBStatsInterval = 15 * time.Second
)

// Server represents our API server
type Server struct {
	config   *config.Config
	logger   *observability.Logger
	router   *mux.Router
	registry *prometheus.Registry
	metrics  *observability.Metrics
	health   *observability.HealthChecker

	db          *sql.DB
	redis       *redis.Client
	sweeper     *cache.Sweeper
	invalidator *cache.Invalidator
	auditLog    audit.Logger
	auditStore  *audit.DBLogger

	service *rbac.Service
	tokens  *auth.TokenManager
	limiter middleware.Limiter

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer opens the storage and permission cache described by cfg, builds
// the authorization service and registers every route. Close releases what
// NewServer opened.
func NewServer(ctx context.Context, cfg *config.Config, logger *observability.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Server{
		config:   cfg,
		logger:   logger,
		router:   mux.NewRouter(),
		registry: prometheus.NewRegistry(),
		health:   observability.NewHealthChecker(version),
		auditLog: audit.NoopLogger{},
		stop:     make(chan struct{}),
	}

	if cfg.Observability.MetricsEnabled {
		s.metrics = observability.NewMetrics(s.registry)
	}

	if err := s.init(ctx); err != nil {
		if closeErr := s.Close(context.Background()); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to release resources after startup error")
		}
		return nil, err
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	repo, db, err := OpenRepository(ctx, s.config.Storage, s.logger)
	if err != nil {
		return err
	}
	s.db = db
	if db != nil {
		s.health.AddCheck("database", true, observability.DatabaseCheck(db))
	}

	if s.config.Auth.AuditEnabled {
		if db == nil {
			return errors.New("audit trail requires SQL storage")
		}
		store, err := audit.NewDBLogger(db)
		if err != nil {
			return fmt.Errorf("failed to initialize audit store: %w", err)
		}
		s.auditStore = store
		s.auditLog = audit.NewMultiLogger(store, audit.NewLogLogger(s.logger))
	}

	permissionCache, err := s.openCache(ctx)
	if err != nil {
		return err
	}

	s.limiter = s.newLimiter()

	tokens, err := auth.NewTokenManager(s.config.Auth.JWTSecret, s.config.Auth.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}
	s.tokens = tokens

	s.service = rbac.NewService(repo,
		rbac.WithLogger(s.logger),
		rbac.WithAuditLogger(s.auditLog),
		rbac.WithCache(permissionCache, s.config.Cache.TTL),
		rbac.WithMetrics(s.metrics),
		rbac.WithTracer(observability.Tracer()),
	)
	return nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(MaxRequestBytes),
	))
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))
	}
	s.router.Use(middleware.NewAuthMiddleware(s.tokens, true).Handler)
	if s.limiter != nil {
		s.router.Use(middleware.NewRateLimitMiddleware(s.limiter, s.logger).Handler)
	}

	rbac.NewHandlers(s.service, s.config.Auth.PlatformApplication).RegisterRoutes(s.router)

	if s.auditStore != nil {
		guard := s.service.Gate.RequireIn(s.config.Auth.PlatformApplication,
			rbac.RequirePermission(rbac.PermAuditLogs, rbac.LevelRead))
		audit.NewHandlers(s.auditStore, s.logger).RegisterRoutes(s.router, guard)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})
}

// newLimiter shares the limit through Redis when a client is configured,
// otherwise every instance limits on its own. It returns nil when rate
// limiting is disabled.
func (s *Server) newLimiter() middleware.Limiter {
	if s.config.Server.RateLimit <= 0 {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: s.config.Server.RateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         s.config.Server.RateLimitBurst,
	}

	if s.redis != nil {
		return middleware.NewDistributedRateLimiter(s.redis, limits, RateLimitKeyPrefix)
	}
	local := middleware.NewRateLimiter(limits)
	if s.sweeper != nil {
		s.sweeper.Add(local)
	}
	return local
}

// routeTemplate labels metrics by route template so ids stay out of labels
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

// Bootstrap seeds the built-in roles and applies the configured role file.
// Both steps are idempotent.
func (s *Server) Bootstrap(ctx context.Context) error {
	if _, err := s.service.EnsureDefaultRoles(ctx); err != nil {
		return fmt.Errorf("failed to seed default roles: %w", err)
	}

	if s.config.Auth.RolesFile == "" {
		return nil
	}
	file, err := rbac.LoadRoleFile(s.config.Auth.RolesFile)
	if err != nil {
		return err
	}
	result, err := s.service.Roles.ApplyRoleFile(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to apply role file: %w", err)
	}
	s.logger.WithFields(map[string]interface{}{
		"file":    s.config.Auth.RolesFile,
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("Role file applied")
	return nil
}

// Start launches background cache maintenance and, with metrics enabled,
// connection pool reporting
func (s *Server) Start() {
	if s.sweeper != nil {
		s.sweeper.Start()
	}
	if s.db != nil && s.metrics != nil {
		s.wg.Add(1)
		go s.reportDBStats(DBStatsInterval)
	}
}

func (s *Server) reportDBStats(interval time.Duration) {
	defer s.wg.Done()
	defer observability.RecoverPanic(s.logger, "database stats reporter")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.metrics.UpdateDBStats(s.db.Stats())
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthHandler serves the health probes and, when enabled, /metrics. It is
// meant for the separate health listener.
func (s *Server) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, s.health)
	if s.metrics != nil {
		observability.RegisterMetricsEndpoint(mux, s.registry)
	}
	return mux
}

// Service returns the authorization service
func (s *Server) Service() *rbac.Service {
	return s.service
}

// Tokens returns the bearer token manager
func (s *Server) Tokens() *auth.TokenManager {
	return s.tokens
}

// Close stops background work and releases connections
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	var errs []error
	if s.sweeper != nil {
		if err := s.sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cache sweeper: %w", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache invalidator: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.auditLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
