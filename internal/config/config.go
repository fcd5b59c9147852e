package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration, loaded from environment
// variables once at startup. It is treated as immutable after Load.
type Config struct {
	// Metadata database (pg.*)
	PGHost     string `env:"PG_HOST" envDefault:"localhost" validate:"required"`
	PGPort     int    `env:"PG_PORT" envDefault:"5432" validate:"gt=0,lte=65535"`
	PGUser     string `env:"PG_USER" envDefault:"postgres"`
	PGPassword string `env:"PG_PASSWORD"`
	PGDatabase string `env:"PG_DATABASE" envDefault:"postgres" validate:"required"`
	PGSSLMode  string `env:"PG_SSLMODE" envDefault:"disable"`

	// HTTP server (server.*)
	Host        string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port        int    `env:"SERVER_PORT" envDefault:"8080" validate:"gt=0,lte=65535"`
	TrustProxy  bool   `env:"SERVER_TRUST_PROXY" envDefault:"false"`
	StrictAuth  bool   `env:"SERVER_STRICT_AUTH" envDefault:"false"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`

	// Routing behaviour (api.*)
	IsPublic          bool     `env:"API_IS_PUBLIC" envDefault:"true"`
	MetaSchemas       []string `env:"API_META_SCHEMAS" envSeparator:"," validate:"required,min=1"`
	EnableServicesAPI bool     `env:"API_ENABLE_SERVICES_API" envDefault:"false"`
	ExposedSchemas    []string `env:"API_EXPOSED_SCHEMAS" envSeparator:","`
	AnonRole          string   `env:"API_ANON_ROLE" envDefault:"anonymous" validate:"required"`
	RoleName          string   `env:"API_ROLE_NAME" envDefault:"authenticator" validate:"required"`
	DefaultDatabaseID string   `env:"API_DEFAULT_DATABASE_ID"`
	AdminAPIKey       string   `env:"API_ADMIN_API_KEY"`
	AdminAllowedIPs   []string `env:"API_ADMIN_ALLOWED_IPS" envSeparator:","`

	// Flush endpoint
	FlushSecret      string `env:"FLUSH_SECRET"`
	FlushRateLimit   int    `env:"FLUSH_RATE_LIMIT" envDefault:"10"`
	FlushRateWindowS int    `env:"FLUSH_RATE_WINDOW_SECONDS" envDefault:"60"`

	// Cache sizes and TTLs (0 disables TTL, pure LRU-by-size)
	ServiceCacheSize int `env:"SERVICE_CACHE_SIZE" envDefault:"1000"`
	ServiceCacheTTLS int `env:"SERVICE_CACHE_TTL_SECONDS" envDefault:"0"`
	HandlerCacheSize int `env:"HANDLER_CACHE_SIZE" envDefault:"1000"`
	HandlerCacheTTLS int `env:"HANDLER_CACHE_TTL_SECONDS" envDefault:"0"`

	// Infrastructure
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging / telemetry
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metadata catalog bootstrap (dev/test only — see internal/platform/migrate.go)
	MigrationsMetadataDir string `env:"MIGRATIONS_METADATA_DIR" envDefault:"migrations/metadata"`

	// Degraded-listener alerting (optional — Slack integration disabled if unset)
	SlackBotToken   string `env:"SLACK_BOT_TOKEN"`
	SlackOpsChannel string `env:"SLACK_OPS_CHANNEL"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetadataDSN returns the libpq connection string for the metadata database.
func (c *Config) MetadataDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase, c.PGSSLMode)
}
