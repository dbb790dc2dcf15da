package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// Repository describes the per-kind record cache.
type Repository interface {
	// Upsert inserts or replaces a record by id.
	Upsert(ctx context.Context, kind models.Kind, rec models.Record, cachedAt time.Time) error

	// InsertAll appends records; callers clear the table first for a full refresh.
	InsertAll(ctx context.Context, kind models.Kind, recs []models.Record, cachedAt time.Time) error

	// GetAll returns every cached record of kind.
	GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error)

	// GetByID returns nil, nil when the record is not cached.
	GetByID(ctx context.Context, kind models.Kind, id string) (models.Record, error)

	// DeleteByID is idempotent.
	DeleteByID(ctx context.Context, kind models.Kind, id string) error

	// RewriteRefs replaces the id from with to inside cached payloads of kind.
	RewriteRefs(ctx context.Context, kind models.Kind, from, to string) error

	// Clear removes every record of kind.
	Clear(ctx context.Context, kind models.Kind) error
}
