package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/silosync/internal/timex"
)

// Record field names every entity carries.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Record is a whole entity as a JSON object. Sync always operates on the
// full record; there is no field-level sync.
type Record map[string]any

func (r Record) ID() string {
	if r == nil {
		return ""
	}
	s, _ := r[FieldID].(string)
	return s
}

// UpdatedAt parses the updated_at field. ok is false when it is missing or malformed.
func (r Record) UpdatedAt() (t time.Time, ok bool) {
	s, _ := r[FieldUpdatedAt].(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := timex.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every key of partial overlaid.
func (r Record) Merge(partial map[string]any) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(partial))
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Touch stamps updated_at with now, and created_at too when absent.
func (r Record) Touch(now time.Time) Record {
	ts := timex.FormatTimestamp(now)
	if _, ok := r[FieldCreatedAt]; !ok {
		r[FieldCreatedAt] = ts
	}
	r[FieldUpdatedAt] = ts
	return r
}

// String reads a string field, returning "" for missing or non-string values.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Number reads a numeric field. JSON numbers decode as float64; integer types
// appear when records are built in code.
func (r Record) Number(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// SameContent reports whether r and other hold the same fields, ignoring id
// and timestamps. Values are compared in their JSON form, so 10 and 10.0 match.
func (r Record) SameContent(other Record) bool {
	a, errA := json.Marshal(r.content())
	b, errB := json.Marshal(other.content())
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func (r Record) content() Record {
	out := r.Clone()
	if out == nil {
		return Record{}
	}
	delete(out, FieldID)
	delete(out, FieldCreatedAt)
	delete(out, FieldUpdatedAt)
	return out
}
