package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// Strategy selects how the default resolver settles a conflict.
type Strategy string

const (
	StrategyLocalWins  Strategy = "local_wins"
	StrategyServerWins Strategy = "server_wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyLocalWins, StrategyServerWins, StrategyMerge, StrategyManual:
		return st, nil
	case "":
		return StrategyServerWins, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", s)
	}
}

// ConflictInput is a queued UPDATE whose server record changed after the
// local edit was made.
type ConflictInput struct {
	Entity  models.Kind
	Local   models.Record
	Server  models.Record
	Changed []string
}

// Resolution tells the engine what to do. Record is what gets sent (use_local,
// merged) or adopted (use_server).
type Resolution struct {
	Outcome models.Outcome
	Record  models.Record
}

type ConflictResolver interface {
	Resolve(ctx context.Context, in ConflictInput) Resolution
}

// StrategyResolver applies one Strategy to every conflict.
type StrategyResolver struct {
	Strategy Strategy
	// Now stamps merged records; nil means time.Now.
	Now func() time.Time
}

func (r StrategyResolver) Resolve(_ context.Context, in ConflictInput) Resolution {
	switch r.Strategy {
	case StrategyLocalWins:
		return Resolution{Outcome: models.OutcomeUseLocal, Record: in.Local.Clone()}
	case StrategyMerge:
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		return Resolution{Outcome: models.OutcomeMerged, Record: merge(in).Touch(now())}
	case StrategyManual:
		return Resolution{Outcome: models.OutcomeManualRequired}
	default:
		return Resolution{Outcome: models.OutcomeUseServer, Record: in.Server.Clone()}
	}
}

// merge keeps the server record and overlays the fields the local edit set.
// Without a changed list every local field wins.
func merge(in ConflictInput) models.Record {
	out := in.Server.Clone()
	if len(in.Changed) == 0 {
		return out.Merge(in.Local)
	}
	for _, k := range in.Changed {
		if v, ok := in.Local[k]; ok {
			out[k] = v
		}
	}
	out[models.FieldID] = in.Server.ID()
	return out
}

// isConflict reports whether the server changed the record after the local
// edit was made. When the record the edit started from is known, the server
// copy must differ from it in content and be newer than it, so the engine's
// own earlier writes of the same record never count. Otherwise the server
// copy only has to be newer than the local edit.
func isConflict(previous, local, server models.Record) bool {
	st, sok := server.UpdatedAt()
	if previous != nil {
		if server.SameContent(previous) {
			return false
		}
		pt, pok := previous.UpdatedAt()
		return !sok || !pok || st.After(pt)
	}
	lt, lok := local.UpdatedAt()
	if !lok || !sok {
		return false
	}
	return st.After(lt)
}
