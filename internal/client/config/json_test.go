package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "cfg.json", map[string]any{
		"server_url":            "http://www.example:9000",
		"online_check_interval": "10s",
		"sync_timeout":          int64(5 * time.Second),
		"auto_sync":             false,
		"dead_letter_s3_bucket": "letters",
	})

	t.Run("overlays present keys", func(t *testing.T) {
		var cfg Config
		cfg.LoadDefaults()
		require.NoError(t, parseJson(&cfg, []string{"-config", path}))

		assert.Equal(t, "http://www.example:9000", cfg.ServerURL)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
		assert.Equal(t, 5*time.Second, cfg.SyncTimeout)
		assert.False(t, cfg.AutoSync)
		assert.Equal(t, "letters", cfg.DeadLetterS3Bucket)

		// untouched keys keep their defaults
		assert.Equal(t, 3, cfg.MaxRetries)
		assert.Equal(t, "silosync.db", cfg.DatabaseDSN)
	})

	t.Run("no config flag leaves config alone", func(t *testing.T) {
		cfg := Config{ServerURL: "http://defaults:1234", OnlineCheckInterval: 42 * time.Second}
		require.NoError(t, parseJson(&cfg, []string{"status"}))

		assert.Equal(t, "http://defaults:1234", cfg.ServerURL)
		assert.Equal(t, 42*time.Second, cfg.OnlineCheckInterval)
	})

	t.Run("invalid JSON is an error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		var cfg Config
		assert.Error(t, parseJson(&cfg, []string{"--config=" + bad}))
	})
}
