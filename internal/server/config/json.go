package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/silosync/internal/flagx"
	"github.com/dmitrijs2005/silosync/internal/timex"
)

// JsonConfig is the JSON form of Config. SessionTTL is a timex.Duration, so
// both "24h" and integer nanoseconds are accepted.
type JsonConfig struct {
	ListenAddr   string         `json:"listen_addr"`
	DatabaseDSN  string         `json:"database_dsn"`
	SecretKey    string         `json:"secret_key"`
	SessionTTL   timex.Duration `json:"session_ttl"`
	RequireAuth  bool           `json:"require_auth"`
	LogFile      string         `json:"log_file"`
	LogLevel     string         `json:"log_level"`
	LogMaxSizeMB int            `json:"log_max_size_mb"`
}

// parseJson loads the file named by -c/-config on top of config; keys absent
// from the file keep their current values.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.JsonConfigFlags(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	c := &JsonConfig{
		ListenAddr:   config.ListenAddr,
		DatabaseDSN:  config.DatabaseDSN,
		SecretKey:    config.SecretKey,
		SessionTTL:   timex.Duration{Duration: config.SessionTTL},
		RequireAuth:  config.RequireAuth,
		LogFile:      config.LogFile,
		LogLevel:     config.LogLevel,
		LogMaxSizeMB: config.LogMaxSizeMB,
	}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", jsonConfigFile, err)
	}

	config.ListenAddr = c.ListenAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.SessionTTL = c.SessionTTL.Duration
	config.RequireAuth = c.RequireAuth
	config.LogFile = c.LogFile
	config.LogLevel = c.LogLevel
	config.LogMaxSizeMB = c.LogMaxSizeMB
	return nil
}
