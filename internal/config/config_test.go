package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, ":8000", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, 256, cfg.Redis.CacheSize)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "flowhawk-alerts", cfg.OpenSearch.IndexPrefix)
	assert.Equal(t, 100, cfg.Stream.QueueSize)
	assert.Equal(t, 15*time.Second, cfg.Stream.KeepAlive)
	assert.Equal(t, int64(42), cfg.Synthetic.Seed)
	assert.Equal(t, 30, cfg.Synthetic.RatePerMin)
	assert.Equal(t, int64(256<<20), cfg.Datasets.MaxUploadBytes)
	assert.Equal(t, ModeSyntheticSeed, cfg.Ingestion.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
server:
  port: 9090
  write_timeout: 30s
database:
  driver: Memory
nats:
  enabled: true
  reconnect_wait: 5s
synthetic:
  seed: 7
  rate_per_min: 120
datasets:
  default_path: /data/zeek/*.csv
ingestion:
  mode: zeek_csv
  zeek_conn_path: /data/zeek/conn.log
  zeek_seed_limit: 50
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, int64(7), cfg.Synthetic.Seed)
	assert.Equal(t, 120, cfg.Synthetic.RatePerMin)
	assert.Equal(t, "/data/zeek/*.csv", cfg.Datasets.DefaultPath)
	assert.Equal(t, ModeZeekCSV, cfg.Ingestion.Mode)
	assert.Equal(t, 50, cfg.Ingestion.ZeekSeedLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FLOWHAWK_SERVER_PORT", "9999")
	t.Setenv("FLOWHAWK_DATABASE_DRIVER", "memory")
	t.Setenv("FLOWHAWK_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("FLOWHAWK_INGESTION_MODE", "manual")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, ModeManual, cfg.Ingestion.Mode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"driver", "database:\n  driver: sqlite\n"},
		{"mode", "ingestion:\n  mode: replay\n"},
		{"zeek path", "ingestion:\n  mode: ZEEK_CSV\n"},
		{"port", "server:\n  port: 70000\n"},
		{"rate", "synthetic:\n  rate_per_min: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
