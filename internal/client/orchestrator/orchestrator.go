// Package orchestrator decides when the sync engine runs: on reconnect, on
// server push, on a timer and on demand. It owns the lifecycle of the
// background goroutines and the local store.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/client/network"
	"github.com/dmitrijs2005/silosync/internal/client/services"
	"github.com/dmitrijs2005/silosync/internal/client/store"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/push"
)

// Runner is a background loop such as the push listener.
type Runner interface {
	Run(ctx context.Context) error
}

type Options struct {
	// AutoSync drains the queue on reconnect and on background requests.
	AutoSync bool
	// SyncInterval drains a non-empty queue periodically; zero disables it.
	SyncInterval time.Duration
}

type Orchestrator struct {
	store   store.Store
	data    *services.DataService
	engine  *services.SyncEngine
	monitor *network.Monitor
	bus     *events.Bus
	log     logging.Logger
	opts    Options
	push    Runner

	syncing atomic.Bool
	last    atomic.Pointer[models.SyncResult]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  []func()
}

func New(st store.Store, data *services.DataService, engine *services.SyncEngine, monitor *network.Monitor,
	bus *events.Bus, log logging.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   st,
		data:    data,
		engine:  engine,
		monitor: monitor,
		bus:     bus,
		log:     log.With("component", "orchestrator"),
		opts:    opts,
		ctx:     context.Background(),
	}
}

// WithPush attaches a push source started together with the orchestrator.
func (o *Orchestrator) WithPush(r Runner) *Orchestrator {
	o.push = r
	return o
}

// Start opens the store, loads every kind and starts the background loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.ctx, o.cancel = runCtx, cancel
	o.mu.Unlock()

	if err := o.store.Init(ctx); err != nil {
		o.log.Warn(ctx, "continuing without local persistence", "error", err)
	}

	online := o.monitor.Probe(ctx)
	o.bus.Publish(events.NetworkChanged, online)

	if err := o.data.RefreshData(ctx); err != nil {
		o.log.Error(ctx, "initial load incomplete", "error", err)
	}
	o.bus.Publish(events.CacheRefreshed, o.CacheAges(ctx))

	o.unsub = append(o.unsub, o.monitor.Subscribe(o.onTransition))

	o.goLoop(func(ctx context.Context) { o.monitor.Run(ctx) })
	if o.push != nil {
		o.goLoop(func(ctx context.Context) { _ = o.push.Run(ctx) })
	}
	if o.opts.SyncInterval > 0 {
		o.goLoop(o.tickLoop)
	}

	if online && o.opts.AutoSync && o.pending(ctx) {
		o.TriggerSync()
	}
	o.log.Info(ctx, "orchestrator started", "online", online, "persistent", o.store.Persistent())
	return nil
}

func (o *Orchestrator) goLoop(fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(o.ctx)
	}()
}

func (o *Orchestrator) tickLoop(ctx context.Context) {
	t := time.NewTicker(o.opts.SyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if o.monitor.IsOnline() && o.pending(ctx) {
				o.TriggerSync()
			}
		}
	}
}

func (o *Orchestrator) onTransition(tr network.Transition) {
	o.bus.Publish(events.NetworkChanged, tr.Online)
	if tr.Recovered && o.opts.AutoSync {
		o.log.Info(o.ctx, "connection restored, syncing")
		o.TriggerSync()
	}
}

func (o *Orchestrator) pending(ctx context.Context) bool {
	n, err := o.store.QueueDepth(ctx)
	return err == nil && n > 0
}

// TriggerSync starts a background pass unless one started by the
// orchestrator is still running. It reports whether a pass was started.
func (o *Orchestrator) TriggerSync() bool {
	if !o.syncing.CompareAndSwap(false, true) {
		o.log.Debug(o.ctx, "sync already in progress, trigger dropped")
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.syncing.Store(false)
		// not tied to o.ctx: going offline or stopping must not cut a pass short
		ctx := context.WithoutCancel(o.ctx)
		if _, err := o.sync(ctx); err != nil {
			o.log.Error(ctx, "background sync failed", "error", err)
		}
	}()
	return true
}

// Syncing reports whether a triggered pass is in flight.
func (o *Orchestrator) Syncing() bool {
	return o.syncing.Load()
}

// SyncNow runs a pass and waits for it. It returns common.ErrOffline when the
// API is unreachable.
func (o *Orchestrator) SyncNow(ctx context.Context) (*models.SyncResult, error) {
	if !o.monitor.Probe(ctx) {
		return nil, common.ErrOffline
	}
	return o.sync(ctx)
}

func (o *Orchestrator) sync(ctx context.Context) (*models.SyncResult, error) {
	res, err := o.engine.Sync(ctx)
	if err != nil {
		return nil, err
	}
	o.last.Store(res)

	if res.Touched(models.KindOperations) && o.monitor.IsOnline() {
		if err := o.data.RefreshKind(ctx, models.KindSilos); err != nil {
			o.log.Warn(ctx, "failed to refresh silos after sync", "error", err)
		}
	}
	if res.Failed == 0 && res.Skipped == 0 && o.monitor.IsOnline() {
		o.monitor.ResetOfflineFlag()
	}
	return res, nil
}

// LastResult returns the result of the most recent pass, or nil.
func (o *Orchestrator) LastResult() *models.SyncResult {
	return o.last.Load()
}

// RequestBackgroundSync is handled like a reconnect.
func (o *Orchestrator) RequestBackgroundSync() {
	o.bus.Publish(events.BackgroundSyncRequested, nil)
	if o.opts.AutoSync && o.monitor.IsOnline() {
		o.TriggerSync()
	}
}

// HandlePush reacts to a server notification.
func (o *Orchestrator) HandlePush(ctx context.Context, msg push.Message) {
	switch msg.Type {
	case push.SyncRequested:
		o.RequestBackgroundSync()
	case push.RecordChanged:
		kind, err := models.ParseKind(msg.Entity)
		if err != nil {
			o.log.Warn(ctx, "push for unknown kind", "entity", msg.Entity)
			return
		}
		if !o.monitor.IsOnline() {
			return
		}
		if err := o.data.RefreshKind(ctx, kind); err != nil {
			o.log.Warn(ctx, "failed to refresh after push", "kind", kind, "error", err)
			return
		}
		o.bus.Publish(events.CacheRefreshed, o.CacheAges(ctx))
	default:
		o.log.Debug(ctx, "ignoring push message", "type", msg.Type)
	}
}

// CacheAges reports how long ago each kind was last fully refreshed. Kinds
// never refreshed are absent.
func (o *Orchestrator) CacheAges(ctx context.Context) map[models.Kind]time.Duration {
	ages := make(map[models.Kind]time.Duration)
	times, err := o.store.CacheTimes(ctx)
	if err != nil {
		o.log.Warn(ctx, "failed to read cache times", "error", err)
		return ages
	}
	now := time.Now()
	for k, at := range times {
		ages[k] = now.Sub(at)
	}
	return ages
}

// Stop ends the background loops, waits for an in-flight pass and closes the store.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, u := range o.unsub {
		u()
	}
	o.unsub = nil
	o.wg.Wait()
	return o.store.Close()
}
