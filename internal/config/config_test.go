package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, uint32(30), cfg.Playback.FPS)
	assert.Equal(t, 5*time.Second, cfg.Playback.StallTimeout)
	assert.Equal(t, 90, cfg.Playback.FrameCacheSize)
	assert.Equal(t, uint32(6), cfg.Playback.CatchUpThreshold)
	assert.Equal(t, 0, cfg.Pool.Size)
	assert.Equal(t, uint64(100), cfg.Pool.RebalanceInterval)
	assert.Equal(t, 4096, cfg.Pool.AccessHistorySize)
	assert.Equal(t, 5.0, cfg.Scrub.RateThreshold)
	assert.Equal(t, 150*time.Millisecond, cfg.Scrub.Cooldown)
	assert.True(t, cfg.Audio.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
playback:
  fps: 60
pool:
  size: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cm := &ConfigManager{config: DefaultConfig()}
	require.NoError(t, cm.LoadConfig(path))

	cfg := cm.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, uint32(60), cfg.Playback.FPS)
	assert.Equal(t, 5, cfg.Pool.Size)

	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.Playback.StallTimeout)
	assert.Equal(t, uint64(100), cfg.Pool.RebalanceInterval)
}

func TestLoadConfig_EmptyPathKeepsDefaults(t *testing.T) {
	cm := &ConfigManager{config: DefaultConfig()}
	require.NoError(t, cm.LoadConfig(""))
	assert.Equal(t, DefaultConfig(), cm.GetConfig())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cm := &ConfigManager{config: DefaultConfig()}
	assert.Error(t, cm.LoadConfig("/nonexistent/config.yaml"))
}

func TestLoadConfig_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("playback:\n  fps: 0\n"), 0o644))

	cm := &ConfigManager{config: DefaultConfig()}
	err := cm.LoadConfig(path)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "playback.fps", verr.Field)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"fps too high", func(c *Config) { c.Playback.FPS = 300 }, "playback.fps"},
		{"stall timeout too short", func(c *Config) { c.Playback.StallTimeout = 100 * time.Millisecond }, "playback.stall_timeout"},
		{"cache too small", func(c *Config) { c.Playback.FrameCacheSize = 0 }, "playback.frame_cache_size"},
		{"pool too large", func(c *Config) { c.Pool.Size = 32 }, "pool.size"},
		{"negative threshold", func(c *Config) { c.Pool.RepositionThresholdSecs = -1 }, "pool.reposition_threshold_secs"},
		{"zero rebalance interval", func(c *Config) { c.Pool.RebalanceInterval = 0 }, "pool.rebalance_interval"},
		{"tiny access history", func(c *Config) { c.Pool.AccessHistorySize = 4 }, "pool.access_history_size"},
		{"zero scrub rate", func(c *Config) { c.Scrub.RateThreshold = 0 }, "scrub.rate_threshold"},
		{"cooldown too long", func(c *Config) { c.Scrub.Cooldown = 10 * time.Second }, "scrub.cooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
