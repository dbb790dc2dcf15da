package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/client"
	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/client/store"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DeadLetterSink receives actions the engine gave up on.
type DeadLetterSink interface {
	Put(ctx context.Context, dl models.DeadLetter) error
}

type SyncOptions struct {
	// BatchSize bounds how many entities are synced concurrently.
	BatchSize int
	// MaxRetries is how many retries a failing action gets after its first attempt.
	MaxRetries int
	Strategy   Strategy
	// Timeout bounds a whole pass.
	Timeout time.Duration
	// Resolver overrides the strategy based resolver.
	Resolver    ConflictResolver
	DeadLetters DeadLetterSink
}

func (o *SyncOptions) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Strategy == "" {
		o.Strategy = StrategyServerWins
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Resolver == nil {
		o.Resolver = StrategyResolver{Strategy: o.Strategy}
	}
}

// DefaultSyncOptions returns the options used when none are configured.
func DefaultSyncOptions() SyncOptions {
	o := SyncOptions{MaxRetries: 3}
	o.withDefaults()
	return o
}

// SyncEngine drains the pending-action queue against the remote API.
type SyncEngine struct {
	api   client.API
	store store.Store
	sink  StateSink
	bus   *events.Bus
	log   logging.Logger
	opts  SyncOptions
	now   func() time.Time

	flight  singleflight.Group
	running atomic.Bool
}

func NewSyncEngine(api client.API, st store.Store, sink StateSink, bus *events.Bus, log logging.Logger, opts SyncOptions) *SyncEngine {
	opts.withDefaults()
	return &SyncEngine{
		api:   api,
		store: st,
		sink:  sink,
		bus:   bus,
		log:   log.With("component", "sync"),
		opts:  opts,
		now:   time.Now,
	}
}

// Running reports whether a pass is in flight.
func (e *SyncEngine) Running() bool {
	return e.running.Load()
}

// Sync drains the queue once. Concurrent callers share the in-flight pass
// and receive the same result. The pass is not cancelled with ctx; it is
// bounded by SyncOptions.Timeout instead.
func (e *SyncEngine) Sync(ctx context.Context) (*models.SyncResult, error) {
	v, err, _ := e.flight.Do("sync", func() (any, error) {
		return e.run(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SyncResult), nil
}

func (e *SyncEngine) run(ctx context.Context) (*models.SyncResult, error) {
	e.running.Store(true)
	defer e.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	rb := &resultBuilder{res: &models.SyncResult{
		StartedAt: e.now(),
		Conflicts: []models.Conflict{},
		Errors:    []models.SyncError{},
	}}
	e.bus.Publish(events.SyncStarted, nil)

	actions, err := e.store.ListQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}
	e.log.Info(ctx, "sync started", "pending", len(actions))

	queue, pending := actions, groupByEntity(actions)
	for len(pending) > 0 {
		ready, blocked := splitByRefs(pending, queue)
		if len(ready) == 0 {
			e.hold(ctx, blocked, rb)
			break
		}
		e.runGroups(ctx, ready, rb)
		if len(blocked) == 0 {
			break
		}
		// The groups that ran may have created the records the blocked ones
		// refer to; their payloads now carry server ids.
		if queue, pending, err = e.reload(ctx, blocked); err != nil {
			e.log.Error(ctx, "failed to reload sync queue", "error", err)
			e.hold(ctx, blocked, rb)
			break
		}
	}

	res := rb.finish(e.now())
	e.log.Info(ctx, "sync finished",
		"processed", res.Processed, "failed", res.Failed, "skipped", res.Skipped,
		"conflicts", len(res.Conflicts), "duration", res.Duration)
	e.bus.Publish(events.SyncCompleted, res)
	return res, nil
}

func (e *SyncEngine) runGroups(ctx context.Context, groups [][]models.PendingAction, rb *resultBuilder) {
	var g errgroup.Group
	g.SetLimit(e.opts.BatchSize)
	for _, grp := range groups {
		g.Go(func() error {
			e.processGroup(ctx, grp, rb)
			return nil
		})
	}
	_ = g.Wait()
}

// hold leaves groups queued untouched for a later pass.
func (e *SyncEngine) hold(ctx context.Context, groups [][]models.PendingAction, rb *resultBuilder) {
	n := 0
	for _, grp := range groups {
		n += len(grp)
	}
	rb.skip(n)
	e.log.Warn(ctx, "actions wait for records not yet created on the server", "actions", n)
}

// reload reads the queue again and regroups the actions of groups that are
// still queued.
func (e *SyncEngine) reload(ctx context.Context, groups [][]models.PendingAction) ([]models.PendingAction, [][]models.PendingAction, error) {
	queue, err := e.store.ListQueue(ctx)
	if err != nil {
		return nil, nil, err
	}
	want := make(map[string]struct{})
	for _, grp := range groups {
		for _, a := range grp {
			want[a.ID] = struct{}{}
		}
	}
	keep := make([]models.PendingAction, 0, len(want))
	for _, a := range queue {
		if _, ok := want[a.ID]; ok {
			keep = append(keep, a)
		}
	}
	return queue, groupByEntity(keep), nil
}

// splitByRefs separates groups whose payloads refer to a record that a queued
// CREATE of another group has yet to create on the server.
func splitByRefs(groups [][]models.PendingAction, queue []models.PendingAction) (ready, blocked [][]models.PendingAction) {
	creates := make(map[string]struct{})
	for _, a := range queue {
		if a.Type == models.ActionCreate && a.TempID != "" {
			creates[a.TempID] = struct{}{}
		}
	}
	for _, grp := range groups {
		if waitsForCreate(grp, creates) {
			blocked = append(blocked, grp)
		} else {
			ready = append(ready, grp)
		}
	}
	return ready, blocked
}

func waitsForCreate(grp []models.PendingAction, creates map[string]struct{}) bool {
	own := make(map[string]struct{})
	for _, a := range grp {
		if a.Type == models.ActionCreate {
			own[a.TempID] = struct{}{}
		}
	}
	for _, a := range grp {
		for _, ref := range models.TempRefs(a.Data) {
			_, queued := creates[ref]
			_, mine := own[ref]
			if queued && !mine {
				return true
			}
		}
	}
	return false
}

// groupByEntity splits the queue into per-entity runs. Groups are ordered by
// their first action; actions keep timestamp order inside a group.
func groupByEntity(actions []models.PendingAction) [][]models.PendingAction {
	idx := make(map[string]int)
	groups := make([][]models.PendingAction, 0)
	for _, a := range actions {
		key := string(a.Entity) + "/" + a.TargetID()
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], a)
	}
	return groups
}

// processGroup replays one entity's actions in order and stops at the first
// action that stays queued, so later edits never overtake earlier ones.
func (e *SyncEngine) processGroup(ctx context.Context, actions []models.PendingAction, rb *resultBuilder) {
	ids := make(map[string]string)
	for i, a := range actions {
		if real, ok := ids[a.Data.ID()]; ok && a.RealID == "" {
			a.RealID = real
		}
		if !e.process(ctx, a, ids, rb) {
			rb.skip(len(actions) - i - 1)
			return
		}
	}
}

// process handles one action and reports whether the group may continue.
func (e *SyncEngine) process(ctx context.Context, a models.PendingAction, ids map[string]string, rb *resultBuilder) bool {
	switch a.Type {
	case models.ActionCreate:
		return e.processCreate(ctx, a, ids, rb)
	case models.ActionUpdate:
		return e.processUpdate(ctx, a, rb)
	case models.ActionDelete:
		return e.processDelete(ctx, a, rb)
	default:
		return e.fail(ctx, a, fmt.Errorf("unknown action type %q", a.Type), true, rb)
	}
}

func (e *SyncEngine) processCreate(ctx context.Context, a models.PendingAction, ids map[string]string, rb *resultBuilder) bool {
	tempID := a.TempID
	if tempID == "" {
		tempID = a.Data.ID()
	}

	rec, err := e.api.Create(ctx, a.Entity, withoutID(a.Data))
	if err != nil {
		return e.fail(ctx, a, err, false, rb)
	}

	if _, err := e.sink.ReplaceID(ctx, a.Entity, tempID, rec); err != nil {
		e.log.Error(ctx, "failed to replace temporary id", "kind", a.Entity, "temp_id", tempID, "id", rec.ID(), "error", err)
	}
	ids[tempID] = rec.ID()

	e.done(ctx, a, rb)
	return true
}

func (e *SyncEngine) processUpdate(ctx context.Context, a models.PendingAction, rb *resultBuilder) bool {
	id := a.TargetID()
	if models.IsTempID(id) {
		return e.fail(ctx, a, errors.New("record was never created on the server"), true, rb)
	}

	local := a.Data.Clone()
	local[models.FieldID] = id

	server, err := e.api.Get(ctx, a.Entity, id)
	if err != nil {
		return e.fail(ctx, a, err, errors.Is(err, client.ErrNotFound), rb)
	}

	send := local
	if isConflict(a.Previous, local, server) {
		res := e.opts.Resolver.Resolve(ctx, ConflictInput{Entity: a.Entity, Local: local, Server: server, Changed: a.Changed})
		rb.conflict(models.Conflict{Entity: a.Entity, ID: id, Local: local, Server: server, Outcome: res.Outcome})
		e.log.Info(ctx, "conflict detected", "kind", a.Entity, "id", id, "outcome", res.Outcome)

		switch res.Outcome {
		case models.OutcomeUseServer:
			e.adopt(ctx, a.Entity, server)
			e.done(ctx, a, rb)
			return true
		case models.OutcomeManualRequired:
			msg := "conflict requires manual resolution"
			if err := e.store.UpdateQueueAction(ctx, a.ID, models.ActionPatch{LastError: &msg}); err != nil {
				e.log.Warn(ctx, "failed to annotate queued action", "id", a.ID, "error", err)
			}
			rb.skip(1)
			return false
		default:
			if res.Record != nil {
				send = res.Record
				send[models.FieldID] = id
			}
		}
	}

	rec, err := e.api.Update(ctx, a.Entity, id, send)
	if err != nil {
		return e.fail(ctx, a, err, false, rb)
	}
	e.adopt(ctx, a.Entity, rec)
	e.done(ctx, a, rb)
	return true
}

func (e *SyncEngine) processDelete(ctx context.Context, a models.PendingAction, rb *resultBuilder) bool {
	id := a.TargetID()
	if !models.IsTempID(id) {
		if err := e.api.Delete(ctx, a.Entity, id); err != nil && !errors.Is(err, client.ErrNotFound) {
			return e.fail(ctx, a, err, false, rb)
		}
	}

	if err := e.store.DeleteOne(ctx, a.Entity, id); err != nil {
		e.log.Warn(ctx, "failed to drop deleted record from cache", "kind", a.Entity, "id", id, "error", err)
	}
	e.sink.ApplyDelete(a.Entity, id)
	e.done(ctx, a, rb)
	return true
}

func (e *SyncEngine) adopt(ctx context.Context, kind models.Kind, rec models.Record) {
	if err := e.store.SaveOne(ctx, kind, rec); err != nil {
		e.log.Warn(ctx, "failed to cache synced record", "kind", kind, "id", rec.ID(), "error", err)
	}
	e.sink.ApplyUpsert(kind, rec)
}

func (e *SyncEngine) done(ctx context.Context, a models.PendingAction, rb *resultBuilder) {
	if err := e.store.RemoveFromQueue(ctx, a.ID); err != nil {
		e.log.Error(ctx, "failed to remove synced action", "id", a.ID, "error", err)
	}
	e.log.Debug(ctx, "action synced", "id", a.ID, "type", a.Type, "kind", a.Entity)
	rb.processed(a.Entity)
}

// fail records a failed attempt. The action is abandoned when the error is
// permanent or it has used up its retries; otherwise its retry count grows.
// 401 and 403 keep the action as is. It always stops the group.
func (e *SyncEngine) fail(ctx context.Context, a models.PendingAction, err error, permanent bool, rb *resultBuilder) bool {
	status := client.StatusCode(err)
	msg := err.Error()

	// A rejected session says nothing about the action; it waits, without
	// spending a retry, until the session is renewed.
	if errors.Is(err, client.ErrUnauthorized) {
		a.LastError = msg
		if upErr := e.store.UpdateQueueAction(ctx, a.ID, models.ActionPatch{LastError: &msg}); upErr != nil {
			e.log.Error(ctx, "failed to annotate queued action", "id", a.ID, "error", upErr)
		}
		rb.fail(models.SyncError{Action: a, Message: msg, StatusCode: status, Retryable: true})
		e.log.Warn(ctx, "session rejected, action kept", "id", a.ID, "type", a.Type, "kind", a.Entity, "status", status)
		return false
	}

	if status >= 400 && status < 500 && !client.IsRetryable(err) {
		permanent = true
	}

	if permanent || a.RetryCount >= e.opts.MaxRetries {
		if rmErr := e.store.RemoveFromQueue(ctx, a.ID); rmErr != nil {
			e.log.Error(ctx, "failed to remove abandoned action", "id", a.ID, "error", rmErr)
		}
		a.LastError = msg
		rb.fail(models.SyncError{Action: a, Message: msg, StatusCode: status, Retryable: false})
		e.log.Error(ctx, "action abandoned", "id", a.ID, "type", a.Type, "kind", a.Entity, "retries", a.RetryCount, "error", msg)

		if e.opts.DeadLetters != nil {
			dl := models.DeadLetter{Action: a, Reason: msg, StatusCode: status, FailedAt: e.now().UnixMilli()}
			if dlErr := e.opts.DeadLetters.Put(ctx, dl); dlErr != nil {
				e.log.Error(ctx, "failed to store dead letter", "id", a.ID, "error", dlErr)
			}
		}
		return false
	}

	a.RetryCount++
	a.LastError = msg
	if upErr := e.store.UpdateQueueAction(ctx, a.ID, models.ActionPatch{RetryCount: &a.RetryCount, LastError: &msg}); upErr != nil {
		e.log.Error(ctx, "failed to persist retry count", "id", a.ID, "error", upErr)
	}
	rb.fail(models.SyncError{Action: a, Message: msg, StatusCode: status, Retryable: true})
	e.log.Warn(ctx, "action failed, will retry", "id", a.ID, "type", a.Type, "kind", a.Entity, "retries", a.RetryCount, "error", msg)
	return false
}

type resultBuilder struct {
	mu      sync.Mutex
	res     *models.SyncResult
	touched map[models.Kind]struct{}
}

func (b *resultBuilder) processed(kind models.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Processed++
	if b.touched == nil {
		b.touched = make(map[models.Kind]struct{})
	}
	b.touched[kind] = struct{}{}
}

func (b *resultBuilder) fail(se models.SyncError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Failed++
	b.res.Errors = append(b.res.Errors, se)
}

func (b *resultBuilder) conflict(c models.Conflict) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Conflicts = append(b.res.Conflicts, c)
}

func (b *resultBuilder) skip(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.Skipped += n
}

func (b *resultBuilder) finish(now time.Time) *models.SyncResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.res.FinishedAt = now
	b.res.Duration = now.Sub(b.res.StartedAt)
	b.res.TouchedKinds = make([]models.Kind, 0, len(b.touched))
	for _, k := range models.AllKinds() {
		if _, ok := b.touched[k]; ok {
			b.res.TouchedKinds = append(b.res.TouchedKinds, k)
		}
	}
	return b.res
}
