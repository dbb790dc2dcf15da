package models

import "time"

// Outcome is what conflict resolution decided for one action.
type Outcome string

const (
	OutcomeUseLocal       Outcome = "use_local"
	OutcomeUseServer      Outcome = "use_server"
	OutcomeMerged         Outcome = "merged"
	OutcomeManualRequired Outcome = "manual_required"
)

// Conflict describes a server record that changed after the local edit was made.
type Conflict struct {
	Entity  Kind    `json:"entity"`
	ID      string  `json:"id"`
	Local   Record  `json:"local"`
	Server  Record  `json:"server"`
	Outcome Outcome `json:"outcome"`
}

// SyncError reports a failed action. Retryable=false means the action was
// removed from the queue.
type SyncError struct {
	Action     PendingAction `json:"action"`
	Message    string        `json:"message"`
	StatusCode int           `json:"status_code,omitempty"`
	Retryable  bool          `json:"retryable"`
}

// SyncResult summarizes one drain of the queue. Skipped counts actions left
// queued behind an earlier failure (or unresolved conflict) of the same entity.
type SyncResult struct {
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Conflicts []Conflict  `json:"conflicts"`
	Errors    []SyncError `json:"errors"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	// TouchedKinds lists kinds for which at least one action reached the server.
	TouchedKinds []Kind `json:"touched_kinds"`
}

// Touched reports whether kind had an action applied in this pass.
func (r *SyncResult) Touched(kind Kind) bool {
	for _, k := range r.TouchedKinds {
		if k == kind {
			return true
		}
	}
	return false
}
