package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnv       = "dev"
	defaultDBDriver  = "sqlite"
	defaultDBDSN     = "./dev.db"
	defaultPort      = "8080"
	defaultTokenTTL  = 24 * time.Hour
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultOrgName   = "kuSystem"
	defaultCurrency  = "USD"
	devSessionSecret = "dev-session-secret"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env               string
	Port              string
	DBDriver          string
	DBDSN             string
	SessionSecret     string
	TokenTTL          time.Duration
	AdminEmail        string
	AdminPassword     string
	AdminOrganization string
	LogLevel          string
	LogFormat         string
	Currency          string
}

// IsDev reports whether the application runs in the development environment.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == "dev" || c.Env == "development"
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	return loadFrom(".env")
}

func loadFrom(dotenvPath string) Config {
	// Best-effort: a local dotenv file never overrides real environment variables.
	if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read dotenv file", "path", dotenvPath, "err", err)
	}

	cfg := Config{
		Env:               env("APP_ENV", defaultEnv),
		Port:              env("PORT", defaultPort),
		DBDriver:          env("DB_DRIVER", defaultDBDriver),
		DBDSN:             env("DB_DSN", env("DB_PATH", defaultDBDSN)),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		TokenTTL:          defaultTokenTTL,
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminOrganization: env("ADMIN_ORGANIZATION", defaultOrgName),
		LogLevel:          env("LOG_LEVEL", defaultLogLevel),
		LogFormat:         env("LOG_FORMAT", defaultLogFormat),
		Currency:          env("CURRENCY", defaultCurrency),
	}

	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			slog.Warn("invalid TOKEN_TTL, using default", "value", raw, "default", defaultTokenTTL)
		} else {
			cfg.TokenTTL = ttl
		}
	}

	if cfg.AdminEmail == "" {
		slog.Warn("ADMIN_EMAIL is not set")
	}
	if cfg.AdminPassword == "" {
		slog.Warn("ADMIN_PASSWORD is not set")
	}
	if cfg.SessionSecret == "" {
		slog.Warn("SESSION_SECRET is not set")
		if cfg.IsDev() {
			cfg.SessionSecret = devSessionSecret
		}
	}

	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
