package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":8080"
session:
  ttl: 30m
deeplink:
  scheme: myapp
events:
  backend: redisstream
`), 0o600))

	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_REQUEST_TIMEOUT", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ADMIN_ENABLED", "true")
	t.Setenv("REDIS_OP_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "myapp", cfg.DeepLink.Scheme)
	assert.Equal(t, EventsRedisStream, cfg.Events.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.OpTimeout)
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.HTTP.Addr)
	assert.Equal(t, "redis://cache:6380", cfg.Redis.URL)
}

func TestEmptyRedisURLDisablesPrimary(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("DEEPLINK_SCHEME", "app://")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("DEEPLINK_SCHEME", "app")
	t.Setenv("EVENTS_BACKEND", "kafka")
	_, err = Load("")
	assert.Error(t, err)
}
