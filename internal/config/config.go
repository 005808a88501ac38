// Package config loads daemon configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults.
const (
	DefaultAddr        = "127.0.0.1:8787"
	DefaultQueueSize   = 256
	DefaultCallTimeout = 2 * time.Minute
)

// Config holds the daemon's runtime configuration.
type Config struct {
	Addr         string
	DBPath       string
	QueueSize    int
	CallTimeout  time.Duration
	DefaultModel string
	LogLevel     string

	RateLimitEnabled bool
	RateLimitFPS     float64
	RateLimitBurst   int

	Tailscale TailscaleConfig
}

// Load reads configuration from environment variables.
//
// Environment variables:
//   - SWITCHBOARD_ADDR: listen address (default: 127.0.0.1:8787)
//   - SWITCHBOARD_DB: SQLite database path (default: ~/.switchboard/switchboard.db)
//   - SWITCHBOARD_QUEUE_SIZE: per-connection outbound queue size (default: 256)
//   - SWITCHBOARD_CALL_TIMEOUT: per-model call timeout, Go duration (default: 2m)
//   - SWITCHBOARD_DEFAULT_MODEL: model used when a message names none
//   - SWITCHBOARD_LOG_LEVEL: debug, info, warn, error (default: info)
//   - SWITCHBOARD_RATE_LIMIT: "true"/"1" to enable inbound rate limiting
//   - SWITCHBOARD_RATE_FPS: frames per second per connection (default: 20)
//   - SWITCHBOARD_RATE_BURST: burst size per connection (default: 40)
func Load() Config {
	cfg := Config{
		Addr:        DefaultAddr,
		DBPath:      defaultDBPath(),
		QueueSize:   DefaultQueueSize,
		CallTimeout: DefaultCallTimeout,
		LogLevel:    "info",
	}

	if v := os.Getenv("SWITCHBOARD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("SWITCHBOARD_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SWITCHBOARD_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("SWITCHBOARD_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CallTimeout = d
		}
	}
	cfg.DefaultModel = os.Getenv("SWITCHBOARD_DEFAULT_MODEL")
	if v := os.Getenv("SWITCHBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	cfg.RateLimitEnabled = envBool("SWITCHBOARD_RATE_LIMIT")
	if v := os.Getenv("SWITCHBOARD_RATE_FPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitFPS = f
		}
	}
	if v := os.Getenv("SWITCHBOARD_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitBurst = n
		}
	}

	cfg.Tailscale = LoadTailscaleConfig(filepath.Dir(cfg.DBPath))

	return cfg
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is empty")
	}
	return c.Tailscale.Validate()
}

// defaultDBPath places the database under the user's home directory,
// falling back to the working directory when home is unknown.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "switchboard.db"
	}
	return filepath.Join(home, ".switchboard", "switchboard.db")
}

// envBool returns true if the env var is set to a truthy value ("true", "1", "yes").
func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1" || v == "yes"
}
