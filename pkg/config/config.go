package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// Storage types
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Cache modes
const (
	// CacheModeLocal keeps permission sets in process; Redis, when set, only
	// carries invalidations between instances
	CacheModeLocal = "local"
	// CacheModeShared keeps permission sets in Redis
	CacheModeShared = "shared"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Permission cache configuration
	Cache CacheConfig

	// Authentication and authorization configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Requests per minute per caller; 0 disables rate limiting
	RateLimit      int
	RateLimitBurst int
}

// StorageConfig selects the role and assignment repository
type StorageConfig struct {
	Type         string
	DatabaseURL  string
	MaxOpenConns int
}

// SQL reports whether the storage type is backed by a database
func (s StorageConfig) SQL() bool {
	return s.Type == StoragePostgres || s.Type == StorageSQLite
}

// DriverName returns the database/sql driver for the storage type
func (s StorageConfig) DriverName() string {
	if s.Type == StorageSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// CacheConfig holds permission cache settings
type CacheConfig struct {
	Mode          string
	TTL           time.Duration
	Size          int
	SweepSchedule string

	RedisURL        string
	RedisPoolSize   int
	RedisMaxRetries int
}

// AuthConfig holds token and authorization settings
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string

	// Application in which role management permissions are evaluated
	PlatformApplication string

	// Optional YAML file of custom roles created at startup
	RolesFile string

	AuditEnabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ACCESSPLANE_HOST", "0.0.0.0"),
		Port:            getEnv("ACCESSPLANE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ACCESSPLANE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ACCESSPLANE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ACCESSPLANE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ACCESSPLANE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ACCESSPLANE_HEALTH_PORT", "9090"),
		RateLimit:       getEnvInt("ACCESSPLANE_RATE_LIMIT", 600),
		RateLimitBurst:  getEnvInt("ACCESSPLANE_RATE_LIMIT_BURST", 60),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         strings.ToLower(getEnv("ACCESSPLANE_STORAGE_TYPE", StorageMemory)),
		DatabaseURL:  getEnv("ACCESSPLANE_DATABASE_URL", ""),
		MaxOpenConns: getEnvInt("ACCESSPLANE_DB_MAX_OPEN_CONNS", 25),
	}
}

// loadCacheConfig loads permission cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Mode:            strings.ToLower(getEnv("ACCESSPLANE_CACHE_MODE", CacheModeLocal)),
		TTL:             getEnvDuration("ACCESSPLANE_PERMISSION_CACHE_TTL", 15*time.Minute),
		Size:            getEnvInt("ACCESSPLANE_CACHE_SIZE", 10000),
		SweepSchedule:   getEnv("ACCESSPLANE_CACHE_SWEEP_SCHEDULE", "@every 1m"),
		RedisURL:        getEnv("ACCESSPLANE_REDIS_URL", ""),
		RedisPoolSize:   getEnvInt("ACCESSPLANE_REDIS_POOL_SIZE", 0),
		RedisMaxRetries: getEnvInt("ACCESSPLANE_REDIS_MAX_RETRIES", 0),
	}
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:           getEnv("ACCESSPLANE_JWT_SECRET", ""),
		JWTIssuer:           getEnv("ACCESSPLANE_JWT_ISSUER", "accessplane"),
		PlatformApplication: getEnv("ACCESSPLANE_PLATFORM_APPLICATION", "platform"),
		RolesFile:           getEnv("ACCESSPLANE_ROLES_FILE", ""),
		AuditEnabled:        getEnvBool("ACCESSPLANE_AUDIT_ENABLED", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ACCESSPLANE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ACCESSPLANE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ACCESSPLANE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ACCESSPLANE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ACCESSPLANE_OTEL_SERVICE_NAME", "accessplane"),
		OTelServiceVersion: getEnv("ACCESSPLANE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ACCESSPLANE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.RateLimit < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case StorageMemory:
	case StoragePostgres, StorageSQLite:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, postgres, or sqlite)", c.Storage.Type)
	}

	// Validate cache config
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("permission cache TTL must be positive")
	}
	switch c.Cache.Mode {
	case CacheModeLocal:
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
	case CacheModeShared:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for shared cache mode")
		}
	default:
		return fmt.Errorf("invalid cache mode: %s (must be local or shared)", c.Cache.Mode)
	}

	// Validate auth config
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.PlatformApplication == "" {
		return fmt.Errorf("platform application is required")
	}
	if c.Auth.AuditEnabled && !c.Storage.SQL() {
		return fmt.Errorf("audit trail requires postgres or sqlite storage")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
