package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REDIS_DB", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 336*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Cart.EnforceSingleActive)
	assert.Equal(t, "@every 1h", cfg.Cart.ConsolidationCron)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CART_ENFORCE_SINGLE_ACTIVE", "false")
	t.Setenv("CONSOLIDATION_CRON", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Cart.EnforceSingleActive)
	assert.Empty(t, cfg.Cart.ConsolidationCron)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "carts", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=carts sslmode=disable", cfg.DSN())
}
