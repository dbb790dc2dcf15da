// Package push carries server notifications to connected clients over a
// websocket: the message format and the reconnecting client side listener.
package push

import "time"

// EventsPath is where the server accepts push connections.
const EventsPath = "/api/sync/events"

type MessageType string

const (
	// SyncRequested asks clients to drain their queues now.
	SyncRequested MessageType = "sync-requested"
	// RecordChanged tells clients a record was written by someone else.
	RecordChanged MessageType = "record-changed"
	// Hello is sent once after a connection is accepted.
	Hello MessageType = "hello"
)

type Message struct {
	Type   MessageType `json:"type"`
	Entity string      `json:"entity,omitempty"`
	ID     string      `json:"id,omitempty"`
	At     time.Time   `json:"at"`
}
