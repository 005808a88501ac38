package config

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultTailscalePort is the default port for the tailnet listener.
const DefaultTailscalePort = 9100

// TailscaleConfig holds configuration for the optional tsnet listener,
// which exposes the WebSocket endpoint on a tailnet without opening a
// public port.
type TailscaleConfig struct {
	Enabled    bool
	Hostname   string // tsnet hostname (e.g. "switchboard-alice")
	Port       int
	StateDir   string // tsnet state persistence
	AuthKey    string // loaded from env, never from disk
	ControlURL string // empty = Tailscale SaaS; set for Headscale
}

// LoadTailscaleConfig loads tailnet configuration from environment variables.
//
// Environment variables:
//   - SWITCHBOARD_TS_ENABLED: "true"/"1" to enable (default: false)
//   - SWITCHBOARD_TS_HOSTNAME: tsnet hostname (required when enabled)
//   - SWITCHBOARD_TS_PORT: listener port (default: 9100)
//   - SWITCHBOARD_TS_AUTHKEY: Tailscale auth key (required when enabled)
//   - SWITCHBOARD_TS_STATE_DIR: state directory (default: <dataDir>/tsnet)
//   - SWITCHBOARD_TS_CONTROL_URL: control plane URL (optional, for Headscale)
func LoadTailscaleConfig(dataDir string) TailscaleConfig {
	cfg := TailscaleConfig{
		Port:     DefaultTailscalePort,
		StateDir: fmt.Sprintf("%s/tsnet", dataDir),
	}

	if envBool("SWITCHBOARD_TS_ENABLED") {
		cfg.Enabled = true
	}
	if h := os.Getenv("SWITCHBOARD_TS_HOSTNAME"); h != "" {
		cfg.Hostname = h
	}
	if p := os.Getenv("SWITCHBOARD_TS_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	cfg.AuthKey = os.Getenv("SWITCHBOARD_TS_AUTHKEY")
	if d := os.Getenv("SWITCHBOARD_TS_STATE_DIR"); d != "" {
		cfg.StateDir = d
	}
	cfg.ControlURL = os.Getenv("SWITCHBOARD_TS_CONTROL_URL")

	return cfg
}

// Validate checks that the configuration is usable when enabled.
func (c *TailscaleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Hostname == "" {
		return fmt.Errorf("SWITCHBOARD_TS_HOSTNAME is required when the tailnet listener is enabled")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("SWITCHBOARD_TS_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AuthKey == "" {
		return fmt.Errorf("SWITCHBOARD_TS_AUTHKEY is required when the tailnet listener is enabled")
	}
	return nil
}
