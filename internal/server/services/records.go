// Package services contains server-side business logic. RecordService
// implements the REST contract's semantics: server assigned ids and
// timestamps, merging updates and silo stock upkeep for operations.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/push"
	"github.com/dmitrijs2005/silosync/internal/server/repositories/records"
	"github.com/dmitrijs2005/silosync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/silosync/internal/stock"
	"github.com/google/uuid"
)

// Notifier is told about every committed change.
type Notifier interface {
	Broadcast(msg push.Message)
}

type RecordService struct {
	repos    repomanager.RepositoryManager
	notifier Notifier
	now      func() time.Time
	newID    func() string
}

func NewRecordService(m repomanager.RepositoryManager, n Notifier) *RecordService {
	return &RecordService{
		repos:    m,
		notifier: n,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

func (s *RecordService) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	return s.repos.Records().List(ctx, kind)
}

func (s *RecordService) Get(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	return s.repos.Records().Get(ctx, kind, id)
}

// Create stores body under a fresh id. Client supplied id and timestamps are ignored.
func (s *RecordService) Create(ctx context.Context, kind models.Kind, body models.Record) (models.Record, error) {
	rec := body.Clone()
	if rec == nil {
		rec = models.Record{}
	}
	delete(rec, models.FieldCreatedAt)
	rec[models.FieldID] = s.newID()
	rec.Touch(s.now())

	var silos []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, repo records.Repository) error {
		if err := repo.Insert(ctx, kind, rec); err != nil {
			return err
		}
		var err error
		silos, err = s.adjustStock(ctx, repo, kind, nil, rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", kind.Singular(), err)
	}
	s.changed(kind, rec.ID(), silos)
	return rec, nil
}

// Update merges body into the stored record. id, created_at and updated_at
// are owned by the server.
func (s *RecordService) Update(ctx context.Context, kind models.Kind, id string, body models.Record) (models.Record, error) {
	var (
		out   models.Record
		silos []string
	)
	err := s.repos.WithTx(ctx, func(ctx context.Context, repo records.Repository) error {
		current, err := repo.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		out = current.Merge(body)
		out[models.FieldID] = id
		if c, ok := current[models.FieldCreatedAt]; ok {
			out[models.FieldCreatedAt] = c
		}
		out.Touch(s.now())
		if err := repo.Update(ctx, kind, out); err != nil {
			return err
		}
		silos, err = s.adjustStock(ctx, repo, kind, current, out)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", kind.Singular(), id, err)
	}
	s.changed(kind, id, silos)
	return out, nil
}

func (s *RecordService) Delete(ctx context.Context, kind models.Kind, id string) error {
	var silos []string
	err := s.repos.WithTx(ctx, func(ctx context.Context, repo records.Repository) error {
		current, err := repo.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, kind, id); err != nil {
			return err
		}
		silos, err = s.adjustStock(ctx, repo, kind, current, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind.Singular(), id, err)
	}
	s.changed(kind, id, silos)
	return nil
}

// RequestSync asks connected clients to drain their queues.
func (s *RecordService) RequestSync() {
	if s.notifier != nil {
		s.notifier.Broadcast(push.Message{Type: push.SyncRequested, At: s.now()})
	}
}

// adjustStock applies the stock effect of an operation going from before to
// after and returns the ids of silos it changed. Unknown silos are skipped.
func (s *RecordService) adjustStock(ctx context.Context, repo records.Repository, kind models.Kind, before, after models.Record) ([]string, error) {
	if kind != models.KindOperations {
		return nil, nil
	}
	var changed []string
	for _, ch := range stock.Diff(before, after) {
		silo, err := repo.Get(ctx, models.KindSilos, ch.SiloID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		updated := models.Record(stock.Apply(silo, ch.Delta)).Touch(s.now())
		if err := repo.Update(ctx, models.KindSilos, updated); err != nil {
			return nil, err
		}
		changed = append(changed, ch.SiloID)
	}
	return changed, nil
}

func (s *RecordService) changed(kind models.Kind, id string, silos []string) {
	if s.notifier == nil {
		return
	}
	at := s.now()
	s.notifier.Broadcast(push.Message{Type: push.RecordChanged, Entity: string(kind), ID: id, At: at})
	for _, siloID := range silos {
		s.notifier.Broadcast(push.Message{Type: push.RecordChanged, Entity: string(models.KindSilos), ID: siloID, At: at})
	}
}
