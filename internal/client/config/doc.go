// Package config loads runtime configuration for the silosync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via -c, -config or --config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-server string              base URL of the remote API
//	-db string                  SQLite DSN of the local cache ("" disables persistence)
//	-online-check-interval dur  how often reachability is probed
//	-request-timeout dur        timeout of a single API request
//	-sync-timeout dur           timeout of a whole sync pass
//	-sync-interval dur          periodic sync of a non-empty queue (0 disables)
//	-max-retries int            retries before an action is abandoned
//	-batch-size int             entities synced concurrently
//	-strategy string            conflict strategy: server_wins, local_wins, merge, manual
//	-session string             session cookie value
//	-log-file string            JSON log file ("" logs to stderr)
//	-log-level string           debug, info, warn or error
//
// Boolean settings (auto_sync, push_enabled) are JSON only; the run command
// exposes them as flags as well.
//
// # JSON schema
//
// Durations are timex.Duration, so values can be strings like "3s" or
// integer nanoseconds. Keys missing from the file keep their defaults.
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "database_dsn": "silosync.db",
//	  "online_check_interval": "3s",
//	  "conflict_strategy": "server_wins",
//	  "auto_sync": true,
//	  "dead_letter_s3_bucket": "silosync"
//	}
package config
