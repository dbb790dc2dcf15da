// Package cli is the silosync command-line client.
//
// App wires configuration, the local store, the data service, the sync
// engine and the orchestrator, and exposes one method per user command.
// NewRootCommand builds the cobra tree around those methods; "run" starts
// an interactive shell with background sync and server push.
//
// Record fields are given as name=value pairs. Values that parse as numbers,
// booleans or null are sent as such; everything else is a string.
package cli
