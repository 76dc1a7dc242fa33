package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Overlay   OverlayConfig   `mapstructure:"overlay"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ProvidersConfig holds source provider configuration.
type ProvidersConfig struct {
	// Dir is the directory containing provider definition YAML files.
	Dir string `mapstructure:"dir"`
	// SearchTimeoutSeconds bounds a single provider search call.
	SearchTimeoutSeconds int `mapstructure:"search_timeout_seconds"`
}

// ProbeConfig holds source probing configuration.
type ProbeConfig struct {
	// PoolWidth is the maximum number of concurrent probes.
	// 0 means half the candidate count, preserving the historical
	// two-batch connection bound.
	PoolWidth int `mapstructure:"pool_width"`
	// MaxBytes is the prefix size fetched from a stream segment.
	MaxBytes int64 `mapstructure:"max_bytes"`
	// TimeoutSeconds bounds a single probe.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// OverlayConfig holds overlay (danmaku) configuration.
type OverlayConfig struct {
	APIBase        string `mapstructure:"api_base"`
	APIToken       string `mapstructure:"api_token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// CacheExpireMinutes bounds cached comment sets. 0 disables caching.
	CacheExpireMinutes int `mapstructure:"cache_expire_minutes"`
	// MaxCommentCount downsamples oversized comment sets. 0 disables.
	MaxCommentCount int `mapstructure:"max_comment_count"`
	// SweepCron schedules the expired-cache sweep task.
	SweepCron string `mapstructure:"sweep_cron"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.streamweave")
	}

	v.SetEnvPrefix("STREAMWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8196)

	v.SetDefault("database.path", "./data/streamweave.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("providers.dir", "./providers")
	v.SetDefault("providers.search_timeout_seconds", 15)

	v.SetDefault("probe.pool_width", 0)
	v.SetDefault("probe.max_bytes", 512*1024)
	v.SetDefault("probe.timeout_seconds", 10)

	v.SetDefault("overlay.api_base", "http://localhost:9321")
	v.SetDefault("overlay.api_token", "")
	v.SetDefault("overlay.timeout_seconds", 30)
	v.SetDefault("overlay.cache_expire_minutes", 4320)
	v.SetDefault("overlay.max_comment_count", 0)
	v.SetDefault("overlay.sweep_cron", "0 * * * *")
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SearchTimeout returns the provider search timeout as a duration.
func (c *ProvidersConfig) SearchTimeout() time.Duration {
	if c.SearchTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// Timeout returns the probe timeout as a duration.
func (c *ProbeConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the overlay upstream timeout as a duration.
func (c *OverlayConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheExpiry returns the cache expiry window. Zero disables caching.
func (c *OverlayConfig) CacheExpiry() time.Duration {
	if c.CacheExpireMinutes <= 0 {
		return 0
	}
	return time.Duration(c.CacheExpireMinutes) * time.Minute
}
