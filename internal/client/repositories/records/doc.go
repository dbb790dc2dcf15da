// Package records persists cached entity records in the local SQLite database.
//
// Every entity kind has its own table with the same shape:
//
//	id        TEXT PRIMARY KEY
//	data      TEXT NOT NULL      -- the whole record as JSON
//	cached_at INTEGER NOT NULL   -- unix millis of the write; never returned
//
// Rows are returned in insertion (rowid) order so that a full refresh keeps
// the order the server listed them in.
//
// The repository works over dbx.DBTX, so the same code runs against *sql.DB
// or inside a transaction started with dbx.WithTx.
package records
