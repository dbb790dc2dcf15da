package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, "", c.DatabaseDSN)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.False(t, c.RequireAuth)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
		wantErr  bool
	}{
		{name: "all flags", args: []string{
			"-a", "127.0.0.1:9090", "-d", "postgres://db", "-s", "secret", "-t", "2h", "-l", "srv.log", "-v", "debug", "serve",
		}, expected: &Config{
			ListenAddr:  "127.0.0.1:9090",
			DatabaseDSN: "postgres://db",
			SecretKey:   "secret",
			SessionTTL:  2 * time.Hour,
			LogFile:     "srv.log",
			LogLevel:    "debug",
		}},
		{name: "bad duration", args: []string{"-t", "forever"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := parseFlags(config, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(config, tt.expected))
		})
	}
}

func TestLoadConfig_JSONThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	b, err := json.Marshal(map[string]any{
		"listen_addr":  ":7000",
		"database_dsn": "postgres://json",
		"session_ttl":  "1h",
		"require_auth": true,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	cfg, err := LoadConfig([]string{"serve", "--config=" + path, "-a", ":7001"})
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.ListenAddr)
	assert.Equal(t, "postgres://json", cfg.DatabaseDSN)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.RequireAuth)
	assert.Equal(t, "secretKey", cfg.SecretKey)
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))

	_, err := LoadConfig([]string{"-c", bad})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-c", filepath.Join(dir, "missing.json")})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-s", "", "-c", writeAuthOnly(t, dir)})
	assert.Error(t, err)
}

func writeAuthOnly(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "auth.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"require_auth": true}`), 0o600))
	return p
}
