// Package config holds the engine configuration and project file handling.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete engine configuration
type Config struct {
	// Server configuration for the diagnostics API
	Server ServerConfig `yaml:"server" json:"server"`

	// Database configuration for playback history
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Playback configuration
	Playback PlaybackConfig `yaml:"playback" json:"playback"`

	// Decoder pool configuration
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Scrub detection configuration
	Scrub ScrubConfig `yaml:"scrub" json:"scrub"`

	// Audio configuration
	Audio AudioConfig `yaml:"audio" json:"audio"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" default:"true"`
}

// DatabaseConfig holds history storage configuration
type DatabaseConfig struct {
	Path       string `yaml:"path" json:"path" default:"./framepulse.db"`
	LogQueries bool   `yaml:"log_queries" json:"log_queries" default:"false"`
}

// PlaybackConfig holds frame pump configuration
type PlaybackConfig struct {
	FPS                uint32        `yaml:"fps" json:"fps" default:"30"`
	StallTimeout       time.Duration `yaml:"stall_timeout" json:"stall_timeout" default:"5s"`
	FrameCacheSize     int           `yaml:"frame_cache_size" json:"frame_cache_size" default:"90"`
	CatchUpThreshold   uint32        `yaml:"catch_up_threshold" json:"catch_up_threshold" default:"6"`
	StatsInterval      time.Duration `yaml:"stats_interval" json:"stats_interval" default:"2s"`
	EventThrottleEvery uint32        `yaml:"event_throttle_every" json:"event_throttle_every" default:"1"`
}

// PoolConfig holds decoder pool configuration
type PoolConfig struct {
	// Size is the fixed slot count; 0 selects a duration-adaptive size.
	Size int `yaml:"size" json:"size" default:"0"`

	// RepositionThresholdSecs is the max forward decode distance before a
	// seek is cheaper; 0 selects a duration-adaptive threshold.
	RepositionThresholdSecs float32 `yaml:"reposition_threshold_secs" json:"reposition_threshold_secs" default:"0"`

	// RebalanceInterval is the access count between rebalance recommendations.
	RebalanceInterval uint64 `yaml:"rebalance_interval" json:"rebalance_interval" default:"100"`

	// AccessHistorySize bounds the hotspot histogram (LRU eviction).
	AccessHistorySize int `yaml:"access_history_size" json:"access_history_size" default:"4096"`
}

// ScrubConfig holds scrub detection configuration
type ScrubConfig struct {
	RateThreshold float64       `yaml:"rate_threshold" json:"rate_threshold" default:"5.0"`
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown" default:"150ms"`
}

// AudioConfig holds audio playback configuration
type AudioConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" default:"true"`
}

// ConfigManager manages loading and access to the global configuration
type ConfigManager struct {
	mu     sync.RWMutex
	config *Config
}

var (
	globalConfigManager *ConfigManager
	configOnce          sync.Once
)

// GetConfigManager returns the global configuration manager instance
func GetConfigManager() *ConfigManager {
	configOnce.Do(func() {
		globalConfigManager = &ConfigManager{config: DefaultConfig()}
	})
	return globalConfigManager
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Path:       "./framepulse.db",
			LogQueries: false,
		},
		Playback: PlaybackConfig{
			FPS:                30,
			StallTimeout:       5 * time.Second,
			FrameCacheSize:     90,
			CatchUpThreshold:   6,
			StatsInterval:      2 * time.Second,
			EventThrottleEvery: 1,
		},
		Pool: PoolConfig{
			Size:                    0, // duration-adaptive
			RepositionThresholdSecs: 0, // duration-adaptive
			RebalanceInterval:       100,
			AccessHistorySize:       4096,
		},
		Scrub: ScrubConfig{
			RateThreshold: 5.0,
			Cooldown:      150 * time.Millisecond,
		},
		Audio: AudioConfig{
			Enabled: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, overlaying defaults.
// An empty path keeps the defaults.
func (cm *ConfigManager) LoadConfig(path string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	cm.config = cfg
	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	if c.Playback.FPS == 0 || c.Playback.FPS > 240 {
		return &ValidationError{Field: "playback.fps", Message: "must be between 1 and 240"}
	}

	if c.Playback.StallTimeout < time.Second || c.Playback.StallTimeout > 30*time.Second {
		return &ValidationError{Field: "playback.stall_timeout", Message: "must be between 1s and 30s"}
	}

	if c.Playback.FrameCacheSize < 1 {
		return &ValidationError{Field: "playback.frame_cache_size", Message: "must be at least 1"}
	}

	if c.Pool.Size < 0 || c.Pool.Size > 16 {
		return &ValidationError{Field: "pool.size", Message: "must be between 0 (auto) and 16"}
	}

	if c.Pool.RepositionThresholdSecs < 0 {
		return &ValidationError{Field: "pool.reposition_threshold_secs", Message: "must not be negative"}
	}

	if c.Pool.RebalanceInterval == 0 {
		return &ValidationError{Field: "pool.rebalance_interval", Message: "must be at least 1"}
	}

	if c.Pool.AccessHistorySize < 16 {
		return &ValidationError{Field: "pool.access_history_size", Message: "must be at least 16"}
	}

	if c.Scrub.RateThreshold <= 0 {
		return &ValidationError{Field: "scrub.rate_threshold", Message: "must be positive"}
	}

	if c.Scrub.Cooldown < 10*time.Millisecond || c.Scrub.Cooldown > 5*time.Second {
		return &ValidationError{Field: "scrub.cooldown", Message: "must be between 10ms and 5s"}
	}

	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error in field '" + e.Field + "': " + e.Message
}

// Global convenience functions

// Get returns the current global configuration
func Get() *Config {
	return GetConfigManager().GetConfig()
}

// Load loads configuration from the specified path
func Load(path string) error {
	return GetConfigManager().LoadConfig(path)
}
