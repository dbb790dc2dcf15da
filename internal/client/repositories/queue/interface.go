// Package queue persists pending mutations (the sync queue) in SQLite.
package queue

import (
	"context"

	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// Repository describes the durable FIFO of pending actions.
type Repository interface {
	// Insert persists a fully populated action.
	Insert(ctx context.Context, a *models.PendingAction) error

	// List returns every action ordered by ascending timestamp.
	List(ctx context.Context) ([]models.PendingAction, error)

	// Update applies patch to one action. Missing ids return common.ErrorNotFound.
	Update(ctx context.Context, id string, patch models.ActionPatch) error

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error

	// SetRealID records realID on every action of kind whose payload id or
	// temp id equals tempID.
	SetRealID(ctx context.Context, kind models.Kind, tempID, realID string) error

	// RewriteRefs replaces id from with to inside queued payloads.
	RewriteRefs(ctx context.Context, from, to string) error

	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
