// Package config loads the typed scheduler configuration from YAML and
// watches it for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config enumerates every recognised key with its default.
type Config struct {
	// DatabaseDSN selects managed mode (Postgres) when set.
	DatabaseDSN string `yaml:"databaseDsn"`

	// SQLitePath is the standalone-mode database file (default
	// ~/.hookcron/hookcron.db).
	SQLitePath string `yaml:"sqlitePath"`

	// RedisAddr enables the Redis event publisher when set (host:port).
	RedisAddr string `yaml:"redisAddr"`

	// RedisEventChannel is the pub/sub channel name.
	RedisEventChannel string `yaml:"redisEventChannel"`

	// MaxConcurrentExecutions is the worker pool width.
	MaxConcurrentExecutions int `yaml:"maxConcurrentExecutions"`

	// QueueBound caps the pool's queue; 0 keeps it unbounded.
	QueueBound int `yaml:"queueBound"`

	// DatabaseConnectionLimit sizes the store pool (default 2× concurrency).
	DatabaseConnectionLimit int `yaml:"databaseConnectionLimit"`

	// AutoReschedulingEnabled arms the rescheduling controller.
	AutoReschedulingEnabled *bool `yaml:"autoReschedulingEnabled"`

	// ReschedulingBatchSize is the controller's parallel batch width.
	ReschedulingBatchSize int `yaml:"reschedulingBatchSize"`

	// ShutdownGraceMs bounds the drain on shutdown.
	ShutdownGraceMs int `yaml:"shutdownGraceMs"`

	// HTTPMaxSocketsPerHost caps open sockets per target host.
	HTTPMaxSocketsPerHost int `yaml:"httpMaxSocketsPerHost"`

	// TargetRatePerMinute throttles calls per target host; 0 disables.
	TargetRatePerMinute int `yaml:"targetRatePerMinute"`

	// ReloadDebounceMs is the quiet period after a config file write before
	// the reload fires.
	ReloadDebounceMs int `yaml:"reloadDebounceMs"`
}

const defaultReloadDebounce = 300 * time.Millisecond

// Load reads and parses the config file, then applies defaults. A missing
// file yields the pure-default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Deploy-time secrets override the file.
	if dsn := os.Getenv("HOOKCRON_DATABASE_DSN"); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if addr := os.Getenv("HOOKCRON_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset knob.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrentExecutions <= 0 {
		c.MaxConcurrentExecutions = 10
	}
	if c.DatabaseConnectionLimit <= 0 {
		c.DatabaseConnectionLimit = 2 * c.MaxConcurrentExecutions
	}
	if c.AutoReschedulingEnabled == nil {
		on := true
		c.AutoReschedulingEnabled = &on
	}
	if c.ReschedulingBatchSize <= 0 {
		c.ReschedulingBatchSize = 50
	}
	if c.ShutdownGraceMs <= 0 {
		c.ShutdownGraceMs = 30000
	}
	if c.HTTPMaxSocketsPerHost <= 0 {
		c.HTTPMaxSocketsPerHost = 50
	}
	if c.RedisEventChannel == "" {
		c.RedisEventChannel = "hookcron.events"
	}
	if c.ReloadDebounceMs <= 0 {
		c.ReloadDebounceMs = int(defaultReloadDebounce / time.Millisecond)
	}
	if c.SQLitePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.SQLitePath = home + "/.hookcron/hookcron.db"
		} else {
			c.SQLitePath = "hookcron.db"
		}
	}
}

// AutoRescheduling returns the resolved toggle.
func (c *Config) AutoRescheduling() bool {
	return c.AutoReschedulingEnabled != nil && *c.AutoReschedulingEnabled
}

// ReloadDebounce returns the watcher debounce as a duration.
func (c *Config) ReloadDebounce() time.Duration {
	return time.Duration(c.ReloadDebounceMs) * time.Millisecond
}
