// Package config loads the portal settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Addr      string `env:"SNP_ADDR" envDefault:":8080"`
	UsersFile string `env:"SNP_USERS_FILE" envDefault:"data/users.json"`
	LogLevel  string `env:"SNP_LOG_LEVEL" envDefault:"info"`

	// Sessions
	SessionBackend string        `env:"SNP_SESSION_BACKEND" envDefault:"memory"` // memory, sqlite or redis
	SessionTTL     time.Duration `env:"SNP_SESSION_TTL" envDefault:"24h"`
	DBPath         string        `env:"SNP_DB_PATH" envDefault:"snploans.db"`
	RedisURL       string        `env:"SNP_REDIS_URL"`
	CookieSecure   bool          `env:"SNP_COOKIE_SECURE" envDefault:"false"`
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	switch cfg.SessionBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("SNP_REDIS_URL is required when SNP_SESSION_BACKEND is %s", BackendRedis)
		}
	default:
		return nil, fmt.Errorf("unknown SNP_SESSION_BACKEND %q: want memory, sqlite or redis", cfg.SessionBackend)
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SNP_SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown names mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
