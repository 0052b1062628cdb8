// Package config loads all runtime configuration from environment variables.
// The binaries load an optional .env file into the environment first; this
// package itself only reads os.Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for protestpro.
type Config struct {
	HTTP     HTTPConfig
	DB       DBConfig
	Log      LogConfig
	JWT      JWTConfig
	App      AppConfig
	Worker   WorkerConfig
	OTel     OTelConfig
	Storage  StorageConfig
	Identity IdentityConfig
	Relay    RelayConfig
	Redis    RedisConfig
	Export   ExportConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
	// PublicBaseURL is the externally reachable origin of this service.
	PublicBaseURL string
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "protestpro.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AppConfig holds application-level settings such as seed credentials and
// the bound applied to every external call.
type AppConfig struct {
	SeedAdminEmail      string
	SeedAdminPassword   string
	ExternalCallTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency       int
	ReconcileInterval time.Duration
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Driver    string // "db" (default) or "s3"
	Endpoint  string
	AccessKey string
	SecretKey string //nolint:gosec // intentional: holds object store secret loaded from env
	UseSSL    bool
}

// IdentityConfig selects the identity provider.
type IdentityConfig struct {
	Provider     string // "local" (default) or "gotrue"
	GoTrueURL    string
	ServiceKey   string //nolint:gosec // intentional: holds identity provider service key loaded from env
	ListPageSize int
}

// RelayConfig holds the downstream application origins.
type RelayConfig struct {
	CustomerAppURL string
	AdminAppURL    string
	Timeout        time.Duration
}

// RedisConfig configures the audit stream. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // intentional: holds redis password loaded from env
	DB       int
}

// ExportConfig controls the bulk export packager.
type ExportConfig struct {
	Concurrency int
	URLTTL      time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)
	cfg.HTTP.PublicBaseURL = envStr("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port))

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "protestpro.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	if cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour); err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// App
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@protestpro.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
	if cfg.App.ExternalCallTimeout, err = envDuration("EXTERNAL_CALL_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("EXTERNAL_CALL_TIMEOUT: %w", err)
	}

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)
	if cfg.Worker.ReconcileInterval, err = envDuration("RECONCILE_INTERVAL", 6*time.Hour); err != nil {
		return nil, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
	}

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// Storage
	cfg.Storage.Driver = envStr("STORAGE_DRIVER", "db")
	cfg.Storage.Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.Storage.AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.Storage.SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.Storage.UseSSL = envBool("S3_USE_SSL", true)
	if cfg.Storage.Driver == "s3" && (cfg.Storage.Endpoint == "" || cfg.Storage.AccessKey == "" || cfg.Storage.SecretKey == "") {
		return nil, errors.New("S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY are required when STORAGE_DRIVER=s3")
	}

	// Identity
	cfg.Identity.Provider = envStr("IDENTITY_PROVIDER", "local")
	cfg.Identity.GoTrueURL = os.Getenv("GOTRUE_URL")
	cfg.Identity.ServiceKey = os.Getenv("GOTRUE_SERVICE_KEY")
	cfg.Identity.ListPageSize = envInt("IDENTITY_LIST_PAGE_SIZE", 1000)
	if cfg.Identity.Provider == "gotrue" && (cfg.Identity.GoTrueURL == "" || cfg.Identity.ServiceKey == "") {
		return nil, errors.New("GOTRUE_URL and GOTRUE_SERVICE_KEY are required when IDENTITY_PROVIDER=gotrue")
	}

	// Relay
	cfg.Relay.CustomerAppURL = envStr("CUSTOMER_APP_URL", "http://localhost:3002")
	cfg.Relay.AdminAppURL = envStr("ADMIN_APP_URL", "http://localhost:3001")
	if cfg.Relay.Timeout, err = envDuration("RELAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("RELAY_TIMEOUT: %w", err)
	}

	// Redis
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt("REDIS_DB", 0)

	// Export
	cfg.Export.Concurrency = envInt("EXPORT_CONCURRENCY", 4)
	if cfg.Export.URLTTL, err = envDuration("EXPORT_URL_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("EXPORT_URL_TTL: %w", err)
	}

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
