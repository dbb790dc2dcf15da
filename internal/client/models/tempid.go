package models

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/google/uuid"
)

var (
	tempSeq  atomic.Uint64
	lastTick atomic.Int64
)

// NewTempID mints a process-unique, time-ordered placeholder id of the form
// temp_<unix-millis>_<seq>_<8 hex>.
func NewTempID() string {
	rnd, err := common.MakeRandHexString(4)
	if err != nil {
		rnd = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return fmt.Sprintf("%s%d_%d_%s", common.TempIDPrefix, time.Now().UnixMilli(), tempSeq.Add(1), rnd)
}

// IsTempID reports whether id was minted locally and not yet confirmed by the server.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, common.TempIDPrefix)
}

// TempRefs lists the temporary ids r points at through fields other than its
// own id, such as the silo_id of an operation whose silo was created offline.
func TempRefs(r Record) []string {
	var refs []string
	for k, v := range r {
		if k == FieldID {
			continue
		}
		if s, ok := v.(string); ok && IsTempID(s) {
			refs = append(refs, s)
		}
	}
	return refs
}

// RewriteRef replaces every non-id field equal to from with to. It reports
// whether anything changed; r is not modified.
func RewriteRef(r Record, from, to string) (Record, bool) {
	var out Record
	for k, v := range r {
		if k == FieldID {
			continue
		}
		if s, ok := v.(string); ok && s == from {
			if out == nil {
				out = r.Clone()
			}
			out[k] = to
		}
	}
	if out == nil {
		return r, false
	}
	return out, true
}

// NextTimestamp returns the current time in unix nanoseconds, bumped when
// needed so consecutive calls are strictly increasing.
func NextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		prev := lastTick.Load()
		if now <= prev {
			now = prev + 1
		}
		if lastTick.CompareAndSwap(prev, now) {
			return now
		}
	}
}
