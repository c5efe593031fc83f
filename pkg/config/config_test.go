package config

import (
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// configEnvVars lists every variable LoadConfig reads
var configEnvVars = []string{
	"ACCESSPLANE_HOST", "ACCESSPLANE_PORT", "ACCESSPLANE_HEALTH_PORT",
	"ACCESSPLANE_RATE_LIMIT", "ACCESSPLANE_RATE_LIMIT_BURST",
	"ACCESSPLANE_READ_TIMEOUT", "ACCESSPLANE_WRITE_TIMEOUT", "ACCESSPLANE_IDLE_TIMEOUT", "ACCESSPLANE_SHUTDOWN_TIMEOUT",
	"ACCESSPLANE_STORAGE_TYPE", "ACCESSPLANE_DATABASE_URL", "ACCESSPLANE_DB_MAX_OPEN_CONNS",
	"ACCESSPLANE_CACHE_MODE", "ACCESSPLANE_PERMISSION_CACHE_TTL", "ACCESSPLANE_CACHE_SIZE", "ACCESSPLANE_CACHE_SWEEP_SCHEDULE",
	"ACCESSPLANE_REDIS_URL", "ACCESSPLANE_REDIS_POOL_SIZE", "ACCESSPLANE_REDIS_MAX_RETRIES",
	"ACCESSPLANE_JWT_SECRET", "ACCESSPLANE_JWT_ISSUER", "ACCESSPLANE_PLATFORM_APPLICATION",
	"ACCESSPLANE_ROLES_FILE", "ACCESSPLANE_AUDIT_ENABLED",
	"ACCESSPLANE_LOG_LEVEL", "ACCESSPLANE_METRICS_ENABLED",
	"ACCESSPLANE_OTEL_ENABLED", "ACCESSPLANE_OTEL_ENDPOINT", "ACCESSPLANE_OTEL_SERVICE_NAME",
	"ACCESSPLANE_OTEL_SERVICE_VERSION", "ACCESSPLANE_OTEL_INSECURE",
}

// setEnv clears every config variable, then applies env for the test's duration
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// validConfig returns a configuration that passes Validate
func validConfig() Config {
	return Config{
		Server:  ServerConfig{Port: "8080", HealthPort: "9090"},
		Storage: StorageConfig{Type: StorageMemory},
		Cache:   CacheConfig{Mode: CacheModeLocal, TTL: time.Minute, Size: 100},
		Auth:    AuthConfig{JWTSecret: "secret", PlatformApplication: "platform"},
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "custom")

	if got := getEnv("TEST_VAR", "default"); got != "custom" {
		t.Errorf("getEnv() = %v, want custom", got)
	}
	if got := getEnv("TEST_VAR_NOT_SET", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want default", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"uppercase true", "TRUE", false, true},
		{"one", "1", false, true},
		{"false", "false", true, false},
		{"garbage", "yes", true, false},
		{"unset uses default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			if got := getEnvBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"valid", "42", 42},
		{"negative", "-1", -1},
		{"invalid uses default", "forty", 7},
		{"unset uses default", "", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)
			if got := getEnvInt("TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"minutes", "15m", 15 * time.Minute},
		{"seconds", "90s", 90 * time.Second},
		{"invalid uses default", "soon", time.Second},
		{"unset uses default", "", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := getEnvDuration("TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				HealthPort:      "9090",
				RateLimit:       600,
				RateLimitBurst:  60,
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"ACCESSPLANE_HOST":             "localhost",
				"ACCESSPLANE_PORT":             "3000",
				"ACCESSPLANE_READ_TIMEOUT":     "30s",
				"ACCESSPLANE_WRITE_TIMEOUT":    "30s",
				"ACCESSPLANE_IDLE_TIMEOUT":     "120s",
				"ACCESSPLANE_SHUTDOWN_TIMEOUT": "60s",
				"ACCESSPLANE_HEALTH_PORT":      "9091",
				"ACCESSPLANE_RATE_LIMIT":       "0",
				"ACCESSPLANE_RATE_LIMIT_BURST": "5",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
				RateLimitBurst:  5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if got := loadServerConfig(); got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadStorageConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setEnv(t, nil)
		got := loadStorageConfig()
		want := StorageConfig{Type: StorageMemory, MaxOpenConns: 25}
		if got != want {
			t.Errorf("loadStorageConfig() = %+v, want %+v", got, want)
		}
		if got.SQL() {
			t.Error("memory storage reported as SQL")
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		setEnv(t, map[string]string{
			"ACCESSPLANE_STORAGE_TYPE":      "SQLite",
			"ACCESSPLANE_DATABASE_URL":      "file:accessplane.db",
			"ACCESSPLANE_DB_MAX_OPEN_CONNS": "1",
		})
		got := loadStorageConfig()
		if got.Type != StorageSQLite || got.DatabaseURL != "file:accessplane.db" || got.MaxOpenConns != 1 {
			t.Errorf("loadStorageConfig() = %+v", got)
		}
		if !got.SQL() || got.DriverName() != "sqlite3" {
			t.Errorf("sqlite storage: SQL() = %v, DriverName() = %s", got.SQL(), got.DriverName())
		}
	})

	t.Run("postgres driver", func(t *testing.T) {
		cfg := StorageConfig{Type: StoragePostgres}
		if cfg.DriverName() != "postgres" {
			t.Errorf("DriverName() = %s, want postgres", cfg.DriverName())
		}
	})
}

func TestLoadCacheConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setEnv(t, nil)
		got := loadCacheConfig()
		want := CacheConfig{Mode: CacheModeLocal, TTL: 15 * time.Minute, Size: 10000, SweepSchedule: "@every 1m"}
		if got != want {
			t.Errorf("loadCacheConfig() = %+v, want %+v", got, want)
		}
	})

	t.Run("shared", func(t *testing.T) {
		setEnv(t, map[string]string{
			"ACCESSPLANE_CACHE_MODE":           "shared",
			"ACCESSPLANE_PERMISSION_CACHE_TTL": "5m",
			"ACCESSPLANE_REDIS_URL":            "redis://localhost:6379/0",
			"ACCESSPLANE_REDIS_POOL_SIZE":      "20",
		})
		got := loadCacheConfig()
		if got.Mode != CacheModeShared || got.TTL != 5*time.Minute || got.RedisURL != "redis://localhost:6379/0" || got.RedisPoolSize != 20 {
			t.Errorf("loadCacheConfig() = %+v", got)
		}
	})
}

func TestLoadAuthConfig(t *testing.T) {
	setEnv(t, map[string]string{
		"ACCESSPLANE_JWT_SECRET":    "s3cret",
		"ACCESSPLANE_ROLES_FILE":    "/etc/accessplane/roles.yaml",
		"ACCESSPLANE_AUDIT_ENABLED": "false",
	})

	got := loadAuthConfig()
	want := AuthConfig{
		JWTSecret:           "s3cret",
		JWTIssuer:           "accessplane",
		PlatformApplication: "platform",
		RolesFile:           "/etc/accessplane/roles.yaml",
		AuditEnabled:        false,
	}
	if got != want {
		t.Errorf("loadAuthConfig() = %+v, want %+v", got, want)
	}
}

func TestLoadObservabilityConfig(t *testing.T) {
	setEnv(t, map[string]string{
		"ACCESSPLANE_LOG_LEVEL":       "debug",
		"ACCESSPLANE_OTEL_ENABLED":    "true",
		"ACCESSPLANE_OTEL_INSECURE":   "false",
		"ACCESSPLANE_OTEL_ENDPOINT":   "collector:4317",
		"ACCESSPLANE_METRICS_ENABLED": "0",
	})

	got := loadObservabilityConfig()
	want := ObservabilityConfig{
		LogLevel:           observability.DebugLevel,
		MetricsEnabled:     false,
		OTelEnabled:        true,
		OTelEndpoint:       "collector:4317",
		OTelServiceName:    "accessplane",
		OTelServiceVersion: "1.0.0",
		OTelInsecure:       false,
	}
	if got != want {
		t.Errorf("loadObservabilityConfig() = %+v, want %+v", got, want)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing server port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing health port", func(c *Config) { c.Server.HealthPort = "" }, "health port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "server port and health port must be different"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }, "rate limit must not be negative"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "s3" }, "invalid storage type"},
		{"postgres without url", func(c *Config) { c.Storage.Type = StoragePostgres }, "database URL is required"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "TTL must be positive"},
		{"zero size", func(c *Config) { c.Cache.Size = 0 }, "cache size must be positive"},
		{"shared without redis", func(c *Config) { c.Cache.Mode = CacheModeShared }, "redis URL is required"},
		{"unknown cache mode", func(c *Config) { c.Cache.Mode = "distributed" }, "invalid cache mode"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT secret is required"},
		{"missing platform application", func(c *Config) { c.Auth.PlatformApplication = "" }, "platform application is required"},
		{"audit on memory storage", func(c *Config) { c.Auth.AuditEnabled = true }, "audit trail requires"},
		{"audit on sqlite", func(c *Config) {
			c.Auth.AuditEnabled = true
			c.Storage = StorageConfig{Type: StorageSQLite, DatabaseURL: ":memory:"}
		}, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "accessplane"
		}, "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"ACCESSPLANE_JWT_SECRET":    "secret",
				"ACCESSPLANE_AUDIT_ENABLED": "false",
			},
			wantErr: false,
		},
		{
			name: "audit needs sql storage",
			env: map[string]string{
				"ACCESSPLANE_JWT_SECRET": "secret",
			},
			wantErr: true,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"ACCESSPLANE_JWT_SECRET":    "secret",
				"ACCESSPLANE_AUDIT_ENABLED": "false",
				"ACCESSPLANE_PORT":          "8080",
				"ACCESSPLANE_HEALTH_PORT":   "8080",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
