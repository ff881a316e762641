package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_ENV", "PORT", "DB_DRIVER", "DB_DSN", "DB_PATH", "SESSION_SECRET", "TOKEN_TTL",
	"ADMIN_EMAIL", "ADMIN_PASSWORD", "ADMIN_ORGANIZATION", "LOG_LEVEL", "LOG_FORMAT", "CURRENCY",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := loadFrom(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "./dev.db", cfg.DBDSN)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "kuSystem", cfg.AdminOrganization)
	assert.Equal(t, devSessionSecret, cfg.SessionSecret)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestLoad_ReadsDotEnvAndIgnoresNoise(t *testing.T) {
	clearEnv(t)
	path := writeDotEnv(t, `
# comment

PORT=9090
export DB_DRIVER=postgres
DB_DSN="postgres://ku:ku@localhost:5432/ku"
ADMIN_EMAIL='owner@example.com'
TOKEN_TTL=2h
`)

	cfg := loadFrom(path)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://ku:ku@localhost:5432/ku", cfg.DBDSN)
	assert.Equal(t, "owner@example.com", cfg.AdminEmail)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
}

func TestLoad_DoesNotOverwriteExistingEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	path := writeDotEnv(t, "PORT=9090\n")

	cfg := loadFrom(path)

	assert.Equal(t, "7000", cfg.Port)
}

func TestLoad_LegacyDBPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/var/lib/ku/ku.db")

	cfg := loadFrom(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "/var/lib/ku/ku.db", cfg.DBDSN)
}

func TestLoad_InvalidTokenTTLFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_TTL", "soon")

	cfg := loadFrom(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestLoad_ProductionKeepsEmptySecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	cfg := loadFrom(filepath.Join(t.TempDir(), "missing.env"))

	assert.False(t, cfg.IsDev())
	assert.Empty(t, cfg.SessionSecret)
}
