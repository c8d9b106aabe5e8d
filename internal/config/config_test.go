package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("CART_STORE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, CartStorePostgres, cfg.Cart.Store)
	assert.Equal(t, 1, cfg.Catalog.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive.Interval)
	assert.Empty(t, cfg.KeepAlive.URL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CART_STORE", CartStoreRedis)
	t.Setenv("CART_LOCK_WAIT", "750ms")
	t.Setenv("CATALOG_RETRY_BACKOFF", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CartStoreRedis, cfg.Cart.Store)
	assert.Equal(t, 750*time.Millisecond, cfg.Cart.LockWait)
	assert.Equal(t, 250*time.Millisecond, cfg.Catalog.RetryBackoff)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoad_InvalidCartStore(t *testing.T) {
	t.Setenv("CART_STORE", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CART_STORE")
}

func TestLoad_NegativeLockWait(t *testing.T) {
	t.Setenv("CART_LOCK_WAIT", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CART_LOCK_WAIT")
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestGetRedisAddr(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Host: "cache", Port: "6380"}}
	assert.Equal(t, "cache:6380", cfg.GetRedisAddr())
}
