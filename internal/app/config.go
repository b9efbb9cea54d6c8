package app

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
)

// Config holds runtime configuration for the application. It is read once at
// process start.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppHost           string        `envconfig:"APP_HOST" default:"0.0.0.0"`
	AppPort           int           `envconfig:"APP_PORT" default:"8080"`
	AppWorkers        int           `envconfig:"APP_WORKERS" default:"0"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"300"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	PGDSN             string `envconfig:"PG_DSN"`
	DBHost            string `envconfig:"DB_HOST" default:"localhost"`
	DBPort            int    `envconfig:"DB_PORT" default:"5432"`
	DBName            string `envconfig:"DB_NAME" default:"users"`
	DBUser            string `envconfig:"DB_USER" default:"users"`
	DBPassword        string `envconfig:"DB_PASSWORD" default:"users"`
	DBSSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns        int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBBootstrapSchema bool   `envconfig:"DB_BOOTSTRAP_SCHEMA" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"users"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the process cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StorePostgres, StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("app port %d out of range", c.AppPort)
	}
	if c.AppWorkers < 0 {
		return fmt.Errorf("app workers must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.AppHost, strconv.Itoa(c.AppPort))
}

// DSN returns PG_DSN when set, otherwise a URL built from the DB_* parts.
func (c *Config) DSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// RedactedDSN is DSN with the password masked, safe for logs.
func (c *Config) RedactedDSN() string {
	dsn := c.DSN()
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "postgres://[redacted]"
	}
	return u.Redacted()
}

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
