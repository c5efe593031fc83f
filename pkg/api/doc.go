// Package api assembles the accessplane HTTP server.
//
// # Overview
//
// NewServer turns a config.Config into a running authorization service:
//
//   - Storage: in-memory, PostgreSQL or SQLite repository, migrated on open
//   - Permission cache: in-process LRU swept on a cron schedule, optionally
//     invalidated across instances over Redis pub/sub, or kept in Redis
//   - Audit: SQL-backed trail plus structured log lines
//   - Routes: the rbac API, guarded by bearer authentication, per-caller
//     rate limits and the authorization gate, and GET /v1/audit/events
//
// Health probes and Prometheus metrics are served by HealthHandler on a
// separate listener.
//
// # Usage Example
//
//	server, err := api.NewServer(ctx, cfg, logger, version)
//	if err != nil {
//		return err
//	}
//	defer server.Close(ctx)
//
//	if err := server.Bootstrap(ctx); err != nil {
//		return err
//	}
//	server.Start()
//
//	httpServer := &http.Server{Addr: ":8080", Handler: server}
//	healthServer := &http.Server{Addr: ":9090", Handler: server.HealthHandler()}
//
// # Related Packages
//
//   - pkg/rbac: Authorization core and its HTTP handlers
//   - pkg/cache: Permission-set caches
//   - pkg/config: Configuration
package api
