package config

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/services"
)

// Config holds runtime settings for the silosync client.
type Config struct {
	ServerURL   string
	DatabaseDSN string

	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	SyncTimeout         time.Duration
	SyncInterval        time.Duration
	StaleAfter          time.Duration

	MaxRetries       int
	BatchSize        int
	ConflictStrategy string
	AutoSync         bool
	PushEnabled      bool

	SessionToken string

	LogFile      string
	LogLevel     string
	LogMaxSizeMB int

	DeadLetterS3Bucket    string
	DeadLetterS3Region    string
	DeadLetterS3Endpoint  string
	DeadLetterS3AccessKey string
	DeadLetterS3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabaseDSN = "silosync.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.SyncTimeout = 30 * time.Second
	c.SyncInterval = 0
	c.StaleAfter = 24 * time.Hour
	c.MaxRetries = 3
	c.BatchSize = 10
	c.ConflictStrategy = string(services.StrategyServerWins)
	c.AutoSync = true
	c.PushEnabled = true
	c.LogLevel = "info"
	c.LogMaxSizeMB = 10
	c.DeadLetterS3Region = "us-east-1"
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	if _, err := services.ParseStrategy(c.ConflictStrategy); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.OnlineCheckInterval <= 0 {
		return fmt.Errorf("online check interval must be positive")
	}
	return nil
}

// SyncOptions maps the config onto sync engine options.
func (c *Config) SyncOptions() services.SyncOptions {
	strategy, _ := services.ParseStrategy(c.ConflictStrategy)
	return services.SyncOptions{
		BatchSize:  c.BatchSize,
		MaxRetries: c.MaxRetries,
		Strategy:   strategy,
		Timeout:    c.SyncTimeout,
	}
}

// LoadConfig applies defaults, then the JSON file and finally the flags
// found in args (typically os.Args[1:]). Later sources take precedence.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
