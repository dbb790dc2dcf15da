// Package records stores server side entity records, one JSON document per
// (kind, id), in memory or in PostgreSQL.
package records

import (
	"context"

	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// Repository is the persistence contract of the reference server.
// Get, Update and Delete return common.ErrorNotFound for unknown ids.
type Repository interface {
	List(ctx context.Context, kind models.Kind) ([]models.Record, error)
	Get(ctx context.Context, kind models.Kind, id string) (models.Record, error)
	Insert(ctx context.Context, kind models.Kind, rec models.Record) error
	Update(ctx context.Context, kind models.Kind, rec models.Record) error
	Delete(ctx context.Context, kind models.Kind, id string) error
}
