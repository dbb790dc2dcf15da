// Package deadletter stores actions the sync engine gave up on, locally and
// optionally in an S3 compatible bucket for later inspection.
package deadletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/silosync/internal/client/models"
)

// Sink accepts abandoned actions.
type Sink interface {
	Put(ctx context.Context, dl models.DeadLetter) error
}

// Adder is the part of the local store a StoreSink needs.
type Adder interface {
	AddDeadLetter(ctx context.Context, dl models.DeadLetter) error
}

// StoreSink keeps dead letters in the local store.
type StoreSink struct {
	store Adder
}

func NewStoreSink(store Adder) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Put(ctx context.Context, dl models.DeadLetter) error {
	if err := s.store.AddDeadLetter(ctx, dl); err != nil {
		return fmt.Errorf("failed to store dead letter %s: %w", dl.Action.ID, err)
	}
	return nil
}

// Multi hands every dead letter to all sinks. Nil sinks are skipped and
// failures are joined.
type Multi []Sink

func (m Multi) Put(ctx context.Context, dl models.DeadLetter) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Put(ctx, dl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
