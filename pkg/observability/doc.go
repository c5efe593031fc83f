// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("Role created")
//
// Request-scoped loggers carry request, user and application ids:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Warn("Permission denied")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.PermissionChecksTotal.WithLabelValues("marketingDashboard", "READ", "allowed").Inc()
//	observability.RegisterMetricsEndpoint(mux, registry)
//
// # Tracing
//
// InitOTel installs an OTLP/gRPC tracer provider; Tracer returns the
// accessplane tracer, a no-op until a provider is installed.
//
// # Health and Shutdown
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("database", true, observability.DatabaseCheck(db))
//	checker.AddCheck("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(mux, checker)
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second, server)
//	sm.Register("database", func(context.Context) error { return db.Close() })
//	return sm.Wait(ctx)
package observability
