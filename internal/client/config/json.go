package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/silosync/internal/flagx"
	"github.com/dmitrijs2005/silosync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// they may be written as "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	DatabaseDSN         string         `json:"database_dsn"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	SyncTimeout         timex.Duration `json:"sync_timeout"`
	SyncInterval        timex.Duration `json:"sync_interval"`
	StaleAfter          timex.Duration `json:"stale_after"`
	MaxRetries          int            `json:"max_retries"`
	BatchSize           int            `json:"batch_size"`
	ConflictStrategy    string         `json:"conflict_strategy"`
	AutoSync            bool           `json:"auto_sync"`
	PushEnabled         bool           `json:"push_enabled"`
	SessionToken        string         `json:"session_token"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`
	LogMaxSizeMB        int            `json:"log_max_size_mb"`

	DeadLetterS3Bucket    string `json:"dead_letter_s3_bucket"`
	DeadLetterS3Region    string `json:"dead_letter_s3_region"`
	DeadLetterS3Endpoint  string `json:"dead_letter_s3_endpoint"`
	DeadLetterS3AccessKey string `json:"dead_letter_s3_access_key"`
	DeadLetterS3SecretKey string `json:"dead_letter_s3_secret_key"`
}

func toJson(c *Config) JsonConfig {
	return JsonConfig{
		ServerURL:             c.ServerURL,
		DatabaseDSN:           c.DatabaseDSN,
		OnlineCheckInterval:   timex.Duration{Duration: c.OnlineCheckInterval},
		RequestTimeout:        timex.Duration{Duration: c.RequestTimeout},
		SyncTimeout:           timex.Duration{Duration: c.SyncTimeout},
		SyncInterval:          timex.Duration{Duration: c.SyncInterval},
		StaleAfter:            timex.Duration{Duration: c.StaleAfter},
		MaxRetries:            c.MaxRetries,
		BatchSize:             c.BatchSize,
		ConflictStrategy:      c.ConflictStrategy,
		AutoSync:              c.AutoSync,
		PushEnabled:           c.PushEnabled,
		SessionToken:          c.SessionToken,
		LogFile:               c.LogFile,
		LogLevel:              c.LogLevel,
		LogMaxSizeMB:          c.LogMaxSizeMB,
		DeadLetterS3Bucket:    c.DeadLetterS3Bucket,
		DeadLetterS3Region:    c.DeadLetterS3Region,
		DeadLetterS3Endpoint:  c.DeadLetterS3Endpoint,
		DeadLetterS3AccessKey: c.DeadLetterS3AccessKey,
		DeadLetterS3SecretKey: c.DeadLetterS3SecretKey,
	}
}

func (j JsonConfig) apply(c *Config) {
	c.ServerURL = j.ServerURL
	c.DatabaseDSN = j.DatabaseDSN
	c.OnlineCheckInterval = j.OnlineCheckInterval.Duration
	c.RequestTimeout = j.RequestTimeout.Duration
	c.SyncTimeout = j.SyncTimeout.Duration
	c.SyncInterval = j.SyncInterval.Duration
	c.StaleAfter = j.StaleAfter.Duration
	c.MaxRetries = j.MaxRetries
	c.BatchSize = j.BatchSize
	c.ConflictStrategy = j.ConflictStrategy
	c.AutoSync = j.AutoSync
	c.PushEnabled = j.PushEnabled
	c.SessionToken = j.SessionToken
	c.LogFile = j.LogFile
	c.LogLevel = j.LogLevel
	c.LogMaxSizeMB = j.LogMaxSizeMB
	c.DeadLetterS3Bucket = j.DeadLetterS3Bucket
	c.DeadLetterS3Region = j.DeadLetterS3Region
	c.DeadLetterS3Endpoint = j.DeadLetterS3Endpoint
	c.DeadLetterS3AccessKey = j.DeadLetterS3AccessKey
	c.DeadLetterS3SecretKey = j.DeadLetterS3SecretKey
}

// parseJson overlays cfg with the JSON file named by -c/-config in args.
// The file is decoded on top of the current values, so absent keys keep them.
func parseJson(cfg *Config, args []string) error {
	path := flagx.JsonConfigFlags(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	jc := toJson(cfg)
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}
