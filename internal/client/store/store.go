// Package store is the durable local store of the client: cached entity
// records, the pending-action queue, cache metadata and dead letters, all in
// one SQLite database.
//
// The store initializes lazily. If the database cannot be opened (or no DSN
// is configured) it degrades once to a null backend where every operation is
// a no-op returning empty results, so the rest of the client keeps working
// in memory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/migrations"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/client/repositories/deadletters"
	"github.com/dmitrijs2005/silosync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/silosync/internal/client/repositories/queue"
	"github.com/dmitrijs2005/silosync/internal/client/repositories/records"
	"github.com/dmitrijs2005/silosync/internal/dbx"
	"github.com/dmitrijs2005/silosync/internal/filex"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/google/uuid"
)

// Store is the contract the data service and the sync engine depend on.
type Store interface {
	Init(ctx context.Context) error
	Persistent() bool

	SaveAll(ctx context.Context, kind models.Kind, recs []models.Record) error
	GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error)
	SaveOne(ctx context.Context, kind models.Kind, rec models.Record) error
	GetOne(ctx context.Context, kind models.Kind, id string) (models.Record, error)
	DeleteOne(ctx context.Context, kind models.Kind, id string) error

	Enqueue(ctx context.Context, a models.PendingAction) (string, error)
	ListQueue(ctx context.Context) ([]models.PendingAction, error)
	RemoveFromQueue(ctx context.Context, id string) error
	UpdateQueueAction(ctx context.Context, id string, patch models.ActionPatch) error
	QueueDepth(ctx context.Context) (int, error)
	ClearQueue(ctx context.Context) error

	ReplaceTemporaryID(ctx context.Context, kind models.Kind, tempID, realID string, merged models.Record) (models.Record, error)
	CacheAgeOf(ctx context.Context, kind models.Kind) (*time.Time, error)
	CacheTimes(ctx context.Context) (map[models.Kind]time.Time, error)
	Clear(ctx context.Context, kinds ...models.Kind) error

	AddDeadLetter(ctx context.Context, dl models.DeadLetter) error
	ListDeadLetters(ctx context.Context) ([]models.DeadLetter, error)

	Close() error
}

// LocalStore implements Store over SQLite.
type LocalStore struct {
	dsn string
	bus *events.Bus
	log logging.Logger
	now func() time.Time

	once    sync.Once
	db      *sql.DB
	initErr error
}

var _ Store = (*LocalStore)(nil)

// New returns a store for dsn. Nothing is opened until first use.
func New(dsn string, bus *events.Bus, log logging.Logger) *LocalStore {
	return &LocalStore{
		dsn: dsn,
		bus: bus,
		log: log.With("component", "store"),
		now: time.Now,
	}
}

// Init opens the database and applies migrations. It is safe to call many
// times; only the first call does any work. A failure selects the null
// backend and is returned only from that first call.
func (s *LocalStore) Init(ctx context.Context) error {
	var first bool
	s.once.Do(func() {
		first = true
		s.initErr = s.open(ctx)
		if s.initErr != nil {
			s.log.Warn(ctx, "local store unavailable, running without persistence", "error", s.initErr)
		}
	})
	if first {
		return s.initErr
	}
	return nil
}

func (s *LocalStore) open(ctx context.Context) error {
	if s.dsn == "" {
		return fmt.Errorf("no database configured")
	}
	if err := filex.EnsureParentDir(s.dsn); err != nil {
		return err
	}
	db, err := dbx.OpenSQLite(ctx, s.dsn)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// ready lazily initializes and reports whether a real backend is available.
func (s *LocalStore) ready(ctx context.Context) bool {
	_ = s.Init(ctx)
	return s.db != nil
}

// Persistent reports whether writes reach SQLite (false for the null backend).
func (s *LocalStore) Persistent() bool {
	return s.ready(context.Background())
}

func (s *LocalStore) SaveAll(ctx context.Context, kind models.Kind, recs []models.Record) error {
	if !s.ready(ctx) {
		return nil
	}
	now := s.now()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx, kind); err != nil {
			return err
		}
		if err := repo.InsertAll(ctx, kind, recs, now); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).SetTime(ctx, kind.CacheKey(), now)
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

func (s *LocalStore) GetAll(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	if !s.ready(ctx) {
		return []models.Record{}, nil
	}
	return records.NewSQLiteRepository(s.db).GetAll(ctx, kind)
}

func (s *LocalStore) SaveOne(ctx context.Context, kind models.Kind, rec models.Record) error {
	if !s.ready(ctx) {
		return nil
	}
	return records.NewSQLiteRepository(s.db).Upsert(ctx, kind, rec, s.now())
}

func (s *LocalStore) GetOne(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	if !s.ready(ctx) {
		return nil, nil
	}
	return records.NewSQLiteRepository(s.db).GetByID(ctx, kind, id)
}

func (s *LocalStore) DeleteOne(ctx context.Context, kind models.Kind, id string) error {
	if !s.ready(ctx) {
		return nil
	}
	return records.NewSQLiteRepository(s.db).DeleteByID(ctx, kind, id)
}

// Enqueue persists a new pending action. The queue id, a zero retry count and
// (when unset) the timestamp are assigned here.
func (s *LocalStore) Enqueue(ctx context.Context, a models.PendingAction) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp == 0 {
		a.Timestamp = models.NextTimestamp()
	}
	a.RetryCount = 0
	if a.Type == models.ActionCreate && a.TempID == "" {
		a.TempID = a.Data.ID()
	}

	if !s.ready(ctx) {
		return a.ID, nil
	}
	if err := queue.NewSQLiteRepository(s.db).Insert(ctx, &a); err != nil {
		return "", err
	}
	s.log.Debug(ctx, "action queued", "id", a.ID, "type", a.Type, "entity", a.Entity, "target", a.TargetID())
	s.publishDepth(ctx)
	return a.ID, nil
}

func (s *LocalStore) ListQueue(ctx context.Context) ([]models.PendingAction, error) {
	if !s.ready(ctx) {
		return []models.PendingAction{}, nil
	}
	return queue.NewSQLiteRepository(s.db).List(ctx)
}

func (s *LocalStore) RemoveFromQueue(ctx context.Context, id string) error {
	if !s.ready(ctx) {
		return nil
	}
	if err := queue.NewSQLiteRepository(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.publishDepth(ctx)
	return nil
}

func (s *LocalStore) UpdateQueueAction(ctx context.Context, id string, patch models.ActionPatch) error {
	if !s.ready(ctx) {
		return nil
	}
	return queue.NewSQLiteRepository(s.db).Update(ctx, id, patch)
}

func (s *LocalStore) QueueDepth(ctx context.Context) (int, error) {
	if !s.ready(ctx) {
		return 0, nil
	}
	return queue.NewSQLiteRepository(s.db).Count(ctx)
}

func (s *LocalStore) ClearQueue(ctx context.Context) error {
	if !s.ready(ctx) {
		return nil
	}
	if err := queue.NewSQLiteRepository(s.db).Clear(ctx); err != nil {
		return err
	}
	s.publishDepth(ctx)
	return nil
}

// ReplaceTemporaryID moves the record cached under tempID to realID, overlaid
// with merged (typically the server's response), points queued actions for
// tempID at realID and rewrites references to tempID held by other cached
// records and queued payloads. All of it happens in one transaction.
func (s *LocalStore) ReplaceTemporaryID(ctx context.Context, kind models.Kind, tempID, realID string, merged models.Record) (models.Record, error) {
	var out models.Record
	if !s.ready(ctx) {
		out = models.Record{}.Merge(merged)
		out[models.FieldID] = realID
		return out, nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		current, err := repo.GetByID(ctx, kind, tempID)
		if err != nil {
			return err
		}
		if err := repo.DeleteByID(ctx, kind, tempID); err != nil {
			return err
		}
		out = current.Merge(merged)
		out[models.FieldID] = realID
		if err := repo.Upsert(ctx, kind, out, s.now()); err != nil {
			return err
		}
		for _, k := range models.AllKinds() {
			if err := repo.RewriteRefs(ctx, k, tempID, realID); err != nil {
				return err
			}
		}
		q := queue.NewSQLiteRepository(tx)
		if err := q.SetRealID(ctx, kind, tempID, realID); err != nil {
			return err
		}
		return q.RewriteRefs(ctx, tempID, realID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace %s id %s: %w", kind, tempID, err)
	}
	return out, nil
}

// CacheAgeOf returns the time of the last full refresh of kind, or nil if it
// was never refreshed.
func (s *LocalStore) CacheAgeOf(ctx context.Context, kind models.Kind) (*time.Time, error) {
	if !s.ready(ctx) {
		return nil, nil
	}
	return metadata.NewSQLiteRepository(s.db).GetTime(ctx, kind.CacheKey())
}

// CacheTimes returns the last full refresh time of every kind that has one.
func (s *LocalStore) CacheTimes(ctx context.Context) (map[models.Kind]time.Time, error) {
	out := make(map[models.Kind]time.Time)
	if !s.ready(ctx) {
		return out, nil
	}
	all, err := metadata.NewSQLiteRepository(s.db).List(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range models.AllKinds() {
		raw, ok := all[k.CacheKey()]
		if !ok {
			continue
		}
		t, err := metadata.ParseTime(raw)
		if err != nil {
			s.log.Warn(ctx, "ignoring malformed cache time", "kind", k, "error", err)
			continue
		}
		out[k] = t
	}
	return out, nil
}

// Clear wipes the given kinds together with their cache timestamps. With no
// kinds every entity table and all metadata are wiped. The queue is never
// touched.
func (s *LocalStore) Clear(ctx context.Context, kinds ...models.Kind) error {
	if !s.ready(ctx) {
		return nil
	}
	all := len(kinds) == 0
	if all {
		kinds = models.AllKinds()
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := records.NewSQLiteRepository(tx)
		meta := metadata.NewSQLiteRepository(tx)
		if all {
			if err := meta.Clear(ctx); err != nil {
				return err
			}
		}
		for _, k := range kinds {
			if err := repo.Clear(ctx, k); err != nil {
				return err
			}
			if err := meta.Delete(ctx, k.CacheKey()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *LocalStore) AddDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	if !s.ready(ctx) {
		return nil
	}
	return deadletters.NewSQLiteRepository(s.db).Add(ctx, dl)
}

func (s *LocalStore) ListDeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	if !s.ready(ctx) {
		return []models.DeadLetter{}, nil
	}
	return deadletters.NewSQLiteRepository(s.db).List(ctx)
}

func (s *LocalStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LocalStore) publishDepth(ctx context.Context) {
	if s.bus == nil {
		return
	}
	n, err := s.QueueDepth(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to read queue depth", "error", err)
		return
	}
	s.bus.Publish(events.QueueDepthChanged, n)
}
