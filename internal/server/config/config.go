// Package config handles configuration for the reference server,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"fmt"
	"time"
)

// Config holds runtime settings for the silosync server.
//
// Fields:
//   - ListenAddr: bind address of the HTTP API.
//   - DatabaseDSN: PostgreSQL DSN (pgx); empty keeps records in memory.
//   - SecretKey: HMAC secret for signing session tokens (HS256).
//   - SessionTTL: lifetime of tokens minted by the token command.
//   - RequireAuth: reject API calls without a valid session cookie.
type Config struct {
	ListenAddr   string
	DatabaseDSN  string
	SecretKey    string
	SessionTTL   time.Duration
	RequireAuth  bool
	LogFile      string
	LogLevel     string
	LogMaxSizeMB int
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key must be overridden outside development.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.SessionTTL = 24 * time.Hour
	c.RequireAuth = false
	c.LogLevel = "info"
	c.LogMaxSizeMB = 10
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if cfg.RequireAuth && cfg.SecretKey == "" {
		return nil, fmt.Errorf("invalid config: secret key is required when auth is enabled")
	}
	return cfg, nil
}
