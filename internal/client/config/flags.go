package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/silosync/internal/flagx"
)

// FlagNames lists every flag parseFlags understands, including the config
// file flags, so callers can strip them before handing args to the CLI.
var FlagNames = append([]string{
	"-server", "-db", "-online-check-interval", "-request-timeout", "-sync-timeout",
	"-sync-interval", "-max-retries", "-batch-size", "-strategy", "-session",
	"-log-file", "-log-level",
}, flagx.ConfigFileFlags...)

// parseFlags overlays cfg with the flags from args it recognizes. Unknown
// arguments are left for the command line interface.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, FlagNames)

	fs := flag.NewFlagSet("silosync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "base URL of the remote API")
	fs.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "SQLite DSN of the local cache")
	fs.DurationVar(&cfg.OnlineCheckInterval, "online-check-interval", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "API request timeout")
	fs.DurationVar(&cfg.SyncTimeout, "sync-timeout", cfg.SyncTimeout, "sync pass timeout")
	fs.DurationVar(&cfg.SyncInterval, "sync-interval", cfg.SyncInterval, "periodic sync interval")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries before an action is abandoned")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "entities synced concurrently")
	fs.StringVar(&cfg.ConflictStrategy, "strategy", cfg.ConflictStrategy, "conflict strategy")
	fs.StringVar(&cfg.SessionToken, "session", cfg.SessionToken, "session cookie value")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	// handled by parseJson
	var ignored string
	fs.StringVar(&ignored, "c", "", "config file")
	fs.StringVar(&ignored, "config", "", "config file")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}
