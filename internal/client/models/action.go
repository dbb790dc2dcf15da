package models

// ActionType is the kind of mutation a pending action replays.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// PendingAction is a mutation recorded while the server was unreachable (or
// failed) and waiting to be replayed by the sync engine.
type PendingAction struct {
	ID     string     `json:"id"`
	Type   ActionType `json:"type"`
	Entity Kind       `json:"entity"`

	// Data is the payload: the optimistic record for CREATE, the full merged
	// record for UPDATE, the last known record for DELETE.
	Data Record `json:"data"`

	// Changed lists the fields the caller explicitly set (UPDATE only).
	Changed []string `json:"changed,omitempty"`

	// Previous is the record the edit was made on (UPDATE only). A conflict
	// means the server copy no longer matches it.
	Previous Record `json:"previous,omitempty"`

	// Timestamp is the enqueue time in unix nanoseconds; queue order.
	Timestamp  int64 `json:"timestamp"`
	RetryCount int   `json:"retry_count"`

	// TempID is the placeholder id a CREATE stored its record under.
	TempID string `json:"temp_id,omitempty"`
	// RealID is set once the server assigned an id to the record this action targets.
	RealID string `json:"real_id,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// TargetID is the id the action should be sent to the server with.
func (a PendingAction) TargetID() string {
	if a.RealID != "" {
		return a.RealID
	}
	return a.Data.ID()
}

// ActionPatch lists the mutable fields of a queued action; nil fields are left as is.
type ActionPatch struct {
	RetryCount *int
	RealID     *string
	Data       Record
	Previous   Record
	LastError  *string
}

// DeadLetter is an action the engine gave up on, kept for inspection.
type DeadLetter struct {
	Action     PendingAction `json:"action"`
	Reason     string        `json:"reason"`
	StatusCode int           `json:"status_code,omitempty"`
	FailedAt   int64         `json:"failed_at"`
}
