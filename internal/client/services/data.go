package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/client"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/client/store"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/stock"
	"golang.org/x/sync/errgroup"
)

// OnlineChecker reports current connectivity.
type OnlineChecker interface {
	IsOnline() bool
}

// StateSink lets the sync engine keep in-memory state in step with the
// store changes it makes.
type StateSink interface {
	ApplyUpsert(kind models.Kind, rec models.Record)
	ApplyDelete(kind models.Kind, id string)
	// ReplaceID moves a record created offline from tempID to the id of
	// server, in the store and in memory, and returns the merged record.
	ReplaceID(ctx context.Context, kind models.Kind, tempID string, server models.Record) (models.Record, error)
}

// DataService is the CRUD surface application code uses. Every call tries
// the network first when online and falls back to the local store, keeping
// in-memory state, the cache and the queue consistent.
type DataService struct {
	api   client.API
	store store.Store
	net   OnlineChecker
	log   logging.Logger
	now   func() time.Time

	staleAfter time.Duration

	mu    sync.RWMutex
	state map[models.Kind]*collection

	// tempMu orders local edits of offline-created records against their id
	// replacement. replaced maps replaced temporary ids to server ids.
	tempMu   sync.Mutex
	replaced map[string]string

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(models.Kind)
}

var _ StateSink = (*DataService)(nil)

type DataOptions struct {
	// StaleAfter marks cache fallbacks older than this as stale in logs.
	StaleAfter time.Duration
}

func NewDataService(api client.API, st store.Store, net OnlineChecker, log logging.Logger, opts DataOptions) *DataService {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 24 * time.Hour
	}
	s := &DataService{
		api:        api,
		store:      st,
		net:        net,
		log:        log.With("component", "data"),
		now:        time.Now,
		staleAfter: opts.StaleAfter,
		state:      make(map[models.Kind]*collection),
		replaced:   make(map[string]string),
		subs:       make(map[int]func(models.Kind)),
	}
	for _, k := range models.AllKinds() {
		s.state[k] = newCollection(nil)
	}
	return s
}

// Subscribe registers fn to be called with the kind whose state changed.
func (s *DataService) Subscribe(fn func(models.Kind)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *DataService) notify(kind models.Kind) {
	s.subMu.Lock()
	fns := make([]func(models.Kind), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(kind)
	}
}

// List returns a snapshot of the in-memory records of kind.
func (s *DataService) List(kind models.Kind) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state[kind]
	if !ok {
		return nil
	}
	return c.snapshot()
}

func (s *DataService) Get(kind models.Kind, id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state[kind]
	if !ok {
		return nil, false
	}
	r, ok := c.get(id)
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (s *DataService) ApplyUpsert(kind models.Kind, rec models.Record) {
	s.mu.Lock()
	s.state[kind].upsert(rec.Clone())
	s.mu.Unlock()
	s.notify(kind)
}

func (s *DataService) ApplyDelete(kind models.Kind, id string) {
	s.mu.Lock()
	s.state[kind].remove(id)
	s.mu.Unlock()
	s.notify(kind)
}

func (s *DataService) ReplaceID(ctx context.Context, kind models.Kind, tempID string, server models.Record) (models.Record, error) {
	s.tempMu.Lock()
	realID := server.ID()
	merged, err := s.store.ReplaceTemporaryID(ctx, kind, tempID, realID, server)
	if err != nil {
		merged = server.Clone()
	}
	s.replaced[tempID] = realID

	changed := []models.Kind{kind}
	s.mu.Lock()
	s.state[kind].replaceID(tempID, merged.Clone())
	for _, k := range models.AllKinds() {
		if s.state[k].rewriteRef(tempID, realID) && k != kind {
			changed = append(changed, k)
		}
	}
	s.mu.Unlock()
	s.tempMu.Unlock()

	for _, k := range changed {
		s.notify(k)
	}
	return merged, err
}

// pin resolves an id that may be a replaced temporary id. For temporary ids
// it holds tempMu until release is called, so the record cannot be moved
// to its server id halfway through an edit.
func (s *DataService) pin(id string) (resolved string, release func()) {
	if !models.IsTempID(id) {
		return id, func() {}
	}
	s.tempMu.Lock()
	if real, ok := s.replaced[id]; ok {
		id = real
	}
	return id, s.tempMu.Unlock
}

// resolveRefs swaps references to already replaced temporary ids for server ids.
func (s *DataService) resolveRefs(payload map[string]any) map[string]any {
	var out map[string]any
	s.tempMu.Lock()
	defer s.tempMu.Unlock()
	for k, v := range payload {
		ref, ok := v.(string)
		if !ok || !models.IsTempID(ref) {
			continue
		}
		if real, ok := s.replaced[ref]; ok {
			if out == nil {
				out = models.Record{}.Merge(payload)
			}
			out[k] = real
		}
	}
	if out == nil {
		return payload
	}
	return out
}

func (s *DataService) replaceState(kind models.Kind, recs []models.Record) {
	s.mu.Lock()
	s.state[kind] = newCollection(recs)
	s.mu.Unlock()
	s.notify(kind)
}

// lookup finds a record in memory, then in the cache.
func (s *DataService) lookup(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	if r, ok := s.Get(kind, id); ok {
		return r, nil
	}
	r, err := s.store.GetOne(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %s from cache: %w", kind, id, err)
	}
	return r, nil
}

func (s *DataService) online() bool {
	return s.net != nil && s.net.IsOnline()
}

// Create stores payload as a new record. Online, the server's record is
// returned; otherwise a temporary record is cached and a CREATE is queued.
func (s *DataService) Create(ctx context.Context, kind models.Kind, payload map[string]any) (models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}

	temp := models.Record{}.Merge(s.resolveRefs(payload))
	temp[models.FieldID] = models.NewTempID()
	delete(temp, models.FieldCreatedAt)
	temp.Touch(s.now())

	if s.online() {
		rec, err := s.api.Create(ctx, kind, withoutID(temp))
		if err == nil {
			s.cacheOne(ctx, kind, rec)
			s.ApplyUpsert(kind, rec)
			s.adjustStock(ctx, kind, nil, rec)
			return rec, nil
		}
		s.log.Warn(ctx, "create failed, queueing", "kind", kind, "error", err)
	}

	if err := s.store.SaveOne(ctx, kind, temp); err != nil {
		return nil, fmt.Errorf("failed to cache new %s: %w", kind.Singular(), err)
	}
	if _, err := s.store.Enqueue(ctx, models.PendingAction{
		Type:   models.ActionCreate,
		Entity: kind,
		Data:   temp,
		TempID: temp.ID(),
	}); err != nil {
		_ = s.store.DeleteOne(ctx, kind, temp.ID())
		return nil, fmt.Errorf("failed to queue new %s: %w", kind.Singular(), err)
	}
	s.ApplyUpsert(kind, temp)
	s.adjustStock(ctx, kind, nil, temp)
	return temp.Clone(), nil
}

// Update merges partial into the record with id. Unknown ids return
// common.ErrorNotFound.
func (s *DataService) Update(ctx context.Context, kind models.Kind, id string, partial map[string]any) (models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	partial = s.resolveRefs(partial)
	id, release := s.pin(id)
	defer release()

	current, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%s %s: %w", kind.Singular(), id, common.ErrorNotFound)
	}

	merged := current.Merge(partial)
	merged[models.FieldID] = id
	if c, ok := current[models.FieldCreatedAt]; ok {
		merged[models.FieldCreatedAt] = c
	}
	merged.Touch(s.now())

	if s.online() && !models.IsTempID(id) {
		rec, err := s.api.Update(ctx, kind, id, merged)
		if err == nil {
			s.cacheOne(ctx, kind, rec)
			s.ApplyUpsert(kind, rec)
			s.adjustStock(ctx, kind, current, rec)
			return rec, nil
		}
		s.log.Warn(ctx, "update failed, queueing", "kind", kind, "id", id, "error", err)
	}

	if err := s.store.SaveOne(ctx, kind, merged); err != nil {
		return nil, fmt.Errorf("failed to cache %s %s: %w", kind.Singular(), id, err)
	}
	if _, err := s.store.Enqueue(ctx, models.PendingAction{
		Type:     models.ActionUpdate,
		Entity:   kind,
		Data:     merged,
		Changed:  changedKeys(partial),
		Previous: current,
	}); err != nil {
		_ = s.store.SaveOne(ctx, kind, current)
		return nil, fmt.Errorf("failed to queue %s %s update: %w", kind.Singular(), id, err)
	}
	s.ApplyUpsert(kind, merged)
	s.adjustStock(ctx, kind, current, merged)
	return merged.Clone(), nil
}

// Delete removes the record. A 404 from the server counts as success.
// Offline (or on failure) the record is removed locally and a DELETE is
// queued; deleting an id that is not known locally is then a no-op.
func (s *DataService) Delete(ctx context.Context, kind models.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	id, release := s.pin(id)
	defer release()

	current, err := s.lookup(ctx, kind, id)
	if err != nil {
		return err
	}

	if s.online() && !models.IsTempID(id) {
		err := s.api.Delete(ctx, kind, id)
		if err == nil || errors.Is(err, client.ErrNotFound) {
			if err := s.store.DeleteOne(ctx, kind, id); err != nil {
				s.log.Warn(ctx, "failed to drop deleted record from cache", "kind", kind, "id", id, "error", err)
			}
			s.ApplyDelete(kind, id)
			s.adjustStock(ctx, kind, current, nil)
			return nil
		}
		s.log.Warn(ctx, "delete failed, queueing", "kind", kind, "id", id, "error", err)
	}

	if current == nil {
		return nil
	}

	if err := s.store.DeleteOne(ctx, kind, id); err != nil {
		return fmt.Errorf("failed to delete %s %s from cache: %w", kind.Singular(), id, err)
	}
	if _, err := s.store.Enqueue(ctx, models.PendingAction{
		Type:   models.ActionDelete,
		Entity: kind,
		Data:   current,
	}); err != nil {
		_ = s.store.SaveOne(ctx, kind, current)
		return fmt.Errorf("failed to queue %s %s delete: %w", kind.Singular(), id, err)
	}
	s.ApplyDelete(kind, id)
	s.adjustStock(ctx, kind, current, nil)
	return nil
}

// RefreshData loads every kind in parallel. Only kinds for which both the
// network and the cache failed contribute to the returned error.
func (s *DataService) RefreshData(ctx context.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, kind := range models.AllKinds() {
		g.Go(func() error {
			if err := s.RefreshKind(ctx, kind); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// RefreshKind reloads one kind from the server when online, otherwise (or on
// failure) from the cache. Pending local changes are laid over server data.
func (s *DataService) RefreshKind(ctx context.Context, kind models.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}

	if s.online() {
		recs, err := s.api.List(ctx, kind)
		if err == nil {
			recs, err = s.overlayPending(ctx, kind, recs)
			if err != nil {
				s.log.Warn(ctx, "failed to read pending actions", "kind", kind, "error", err)
			}
			if err := s.store.SaveAll(ctx, kind, recs); err != nil {
				s.log.Warn(ctx, "failed to refresh cache", "kind", kind, "error", err)
			}
			s.replaceState(kind, recs)
			return nil
		}
		s.log.Warn(ctx, "load failed, using cache", "kind", kind, "error", err)
	}

	recs, err := s.store.GetAll(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	if at, err := s.store.CacheAgeOf(ctx, kind); err == nil && at != nil && s.now().Sub(*at) > s.staleAfter {
		s.log.Warn(ctx, "serving stale cache", "kind", kind, "age", s.now().Sub(*at).Round(time.Second))
	}
	s.replaceState(kind, recs)
	return nil
}

// overlayPending applies queued, not yet synced changes of kind to a fresh
// server listing so a refresh does not hide local edits. Silos also get the
// stock moved by queued operations, in queue order, so an operation queued
// before a silo edit is not counted twice.
func (s *DataService) overlayPending(ctx context.Context, kind models.Kind, recs []models.Record) ([]models.Record, error) {
	queue, err := s.store.ListQueue(ctx)
	if err != nil {
		return recs, err
	}
	c := newCollection(recs)
	for _, a := range queue {
		if kind == models.KindSilos && a.Entity == models.KindOperations {
			applyQueuedStock(c, a)
			continue
		}
		if a.Entity != kind {
			continue
		}
		id := a.TargetID()
		switch a.Type {
		case models.ActionCreate, models.ActionUpdate:
			rec := a.Data.Clone()
			rec[models.FieldID] = id
			c.upsert(rec)
		case models.ActionDelete:
			c.remove(id)
		}
	}
	return c.items, nil
}

// applyQueuedStock adds the stock change of one queued operation action to
// the silos in c. Updates queued without the record they were made on are
// skipped.
func applyQueuedStock(c *collection, a models.PendingAction) {
	var before, after models.Record
	switch a.Type {
	case models.ActionCreate:
		after = a.Data
	case models.ActionUpdate:
		if a.Previous == nil {
			return
		}
		before, after = a.Previous, a.Data
	case models.ActionDelete:
		before = a.Data
	}
	for _, ch := range stock.Diff(before, after) {
		if silo, ok := c.get(ch.SiloID); ok {
			c.upsert(models.Record(stock.Apply(silo, ch.Delta)))
		}
	}
}

// adjustStock moves silo stock for an operation going from before to after.
// Adjustments are cache-only; the server recomputes stock when operations sync.
func (s *DataService) adjustStock(ctx context.Context, kind models.Kind, before, after models.Record) {
	if kind != models.KindOperations {
		return
	}
	for _, ch := range stock.Diff(before, after) {
		silo, err := s.lookup(ctx, models.KindSilos, ch.SiloID)
		if err != nil || silo == nil {
			s.log.Debug(ctx, "silo not cached, stock not adjusted", "silo", ch.SiloID, "error", err)
			continue
		}
		updated := models.Record(stock.Apply(silo, ch.Delta))
		if err := s.store.SaveOne(ctx, models.KindSilos, updated); err != nil {
			s.log.Warn(ctx, "failed to cache silo stock", "silo", ch.SiloID, "error", err)
		}
		s.ApplyUpsert(models.KindSilos, updated)
	}
}

func (s *DataService) cacheOne(ctx context.Context, kind models.Kind, rec models.Record) {
	if err := s.store.SaveOne(ctx, kind, rec); err != nil {
		s.log.Warn(ctx, "failed to cache record", "kind", kind, "id", rec.ID(), "error", err)
	}
}

func withoutID(r models.Record) models.Record {
	out := r.Clone()
	delete(out, models.FieldID)
	return out
}

func changedKeys(partial map[string]any) []string {
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
