package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "data/yarelay.db", cfg.Store.SQLitePath)
	assert.Equal(t, "yarelay", cfg.Store.MongoDatabase)
	assert.Equal(t, 64, cfg.WS.SendBuffer)
	assert.EqualValues(t, 65536, cfg.WS.MaxFrameBytes)
	assert.Empty(t, cfg.WS.AllowedOrigins)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yarelay.yaml")
	content := `
http_address: ":9090"
shutdown_grace_period: 2s
log:
  level: debug
  format: json
store:
  driver: sqlite
  sqlite_path: /tmp/relay.db
ws:
  send_buffer: 8
  allowed_origins:
    - https://chat.example.com
metrics:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddress)
	assert.Equal(t, 2*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/relay.db", cfg.Store.SQLitePath)
	assert.Equal(t, 8, cfg.WS.SendBuffer)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.WS.AllowedOrigins)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("YARELAY_HTTP_ADDRESS", ":7070")
	t.Setenv("YARELAY_STORE_DRIVER", "MONGO")
	t.Setenv("YARELAY_STORE_MONGO_URI", "mongodb://db:27017")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddress)
	assert.Equal(t, DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.MongoURI)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("YARELAY_STORE_DRIVER", "postgres")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown store.driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAllowedOriginsFromEnv(t *testing.T) {
	t.Setenv("YARELAY_WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WS.AllowedOrigins)
}
