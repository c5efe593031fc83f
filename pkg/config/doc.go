// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	ACCESSPLANE_HOST="0.0.0.0"
//	ACCESSPLANE_PORT="8080"
//	ACCESSPLANE_HEALTH_PORT="9090"
//	ACCESSPLANE_RATE_LIMIT="600"        # requests per minute per caller, 0 disables
//	ACCESSPLANE_RATE_LIMIT_BURST="60"
//	ACCESSPLANE_READ_TIMEOUT="15s"
//	ACCESSPLANE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	ACCESSPLANE_STORAGE_TYPE="postgres"  # memory, postgres, sqlite
//	ACCESSPLANE_DATABASE_URL="postgres://localhost/accessplane?sslmode=disable"
//	ACCESSPLANE_DB_MAX_OPEN_CONNS="25"
//
// Permission cache settings:
//
//	ACCESSPLANE_CACHE_MODE="local"  # local, shared
//	ACCESSPLANE_PERMISSION_CACHE_TTL="15m"
//	ACCESSPLANE_CACHE_SIZE="10000"
//	ACCESSPLANE_CACHE_SWEEP_SCHEDULE="@every 1m"
//	ACCESSPLANE_REDIS_URL="redis://localhost:6379/0"
//
// In local mode a Redis URL only carries invalidations between instances; in
// shared mode permission sets themselves live in Redis.
//
// Auth settings:
//
//	ACCESSPLANE_JWT_SECRET="..."
//	ACCESSPLANE_JWT_ISSUER="accessplane"
//	ACCESSPLANE_PLATFORM_APPLICATION="platform"
//	ACCESSPLANE_ROLES_FILE="/etc/accessplane/roles.yaml"
//	ACCESSPLANE_AUDIT_ENABLED="true"
//
// Observability settings:
//
//	ACCESSPLANE_LOG_LEVEL="info"  # debug, info, warn, error
//	ACCESSPLANE_METRICS_ENABLED="true"
//	ACCESSPLANE_OTEL_ENABLED="true"
//	ACCESSPLANE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//
// # Related Packages
//
//   - pkg/rbac: Uses storage and auth configuration
//   - pkg/cache: Uses cache configuration
//   - pkg/observability: Uses observability configuration
package config
