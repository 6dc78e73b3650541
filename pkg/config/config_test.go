package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yml")
	err := os.WriteFile(configPath, []byte(content), 0o644)
	require.NoError(t, err)
	return configPath
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		configPath := writeConfig(t, `
server:
  listen: ":9090"
  timeout: 45s

database:
  dsn: "file:/tmp/test.db?mode=rwc"
  max_open_conns: 20

http:
  user_agent: "MyReader/2.0"
  timeout: 15s

schedule:
  entry_interval: 30m
  icon_interval: 12h
  icon_offset: 1h
  error_threshold: 5
  max_concurrent: 8
`)

		cfg, err := Load(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, ":9090", cfg.Server.Listen)
		assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "file:/tmp/test.db?mode=rwc", cfg.Database.DSN)
		assert.Equal(t, 20, cfg.Database.MaxOpenConns)
		assert.Equal(t, "MyReader/2.0", cfg.HTTP.UserAgent)
		assert.Equal(t, 15*time.Second, cfg.HTTP.Timeout)
		assert.Equal(t, 30*time.Minute, cfg.Schedule.EntryInterval)
		assert.Equal(t, 12*time.Hour, cfg.Schedule.IconInterval)
		assert.Equal(t, time.Hour, cfg.Schedule.IconOffset)
		assert.Equal(t, 5, cfg.Schedule.ErrorThreshold)
		assert.Equal(t, 8, cfg.Schedule.MaxConcurrent)
	})

	t.Run("defaults", func(t *testing.T) {
		configPath := writeConfig(t, `{}`)

		cfg, err := Load(configPath)
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.Server.Listen)
		assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
		assert.Equal(t, "Feedsmith/1.0", cfg.HTTP.UserAgent)
		assert.Equal(t, time.Hour, cfg.Schedule.EntryInterval)
		assert.Equal(t, 6*time.Hour, cfg.Schedule.IconInterval)
		assert.Equal(t, 30*time.Minute, cfg.Schedule.IconOffset)
		assert.Equal(t, 10, cfg.Schedule.ErrorThreshold)
		assert.Equal(t, runtime.NumCPU(), cfg.Schedule.MaxConcurrent)
	})

	t.Run("env expansion", func(t *testing.T) {
		t.Setenv("TEST_LISTEN_ADDR", ":7070")
		configPath := writeConfig(t, `
server:
  listen: "${TEST_LISTEN_ADDR}"
`)

		cfg, err := Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.Server.Listen)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("does-not-exist.yml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		configPath := writeConfig(t, "server: [listen: {")
		_, err := Load(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "server timeout too small",
			content: "server:\n  timeout: 100ms\n",
			errMsg:  "server timeout",
		},
		{
			name:    "http timeout too small",
			content: "http:\n  timeout: 10ms\n",
			errMsg:  "http timeout",
		},
		{
			name:    "entry interval too small",
			content: "schedule:\n  entry_interval: 5s\n",
			errMsg:  "entry_interval",
		},
		{
			name:    "icon interval too small",
			content: "schedule:\n  icon_interval: 30s\n",
			errMsg:  "icon_interval",
		},
		{
			name:    "negative error threshold",
			content: "schedule:\n  error_threshold: -1\n",
			errMsg:  "error_threshold",
		},
		{
			name:    "negative max concurrent",
			content: "schedule:\n  max_concurrent: -2\n",
			errMsg:  "max_concurrent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetServerConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  listen: ":9191"
  timeout: 20s
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":9191", listen)
	assert.Equal(t, 20*time.Second, timeout)
}

func TestGetScheduleConfig(t *testing.T) {
	configPath := writeConfig(t, `
schedule:
  entry_interval: 2h
  error_threshold: 3
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	sc := cfg.GetScheduleConfig()
	assert.Equal(t, 2*time.Hour, sc.EntryInterval)
	assert.Equal(t, 3, sc.ErrorThreshold)
}
