// Package network tracks whether the remote API is reachable.
//
// There is no portable connectivity event in Go, so the monitor probes the
// API health endpoint on an interval and turns the results into online and
// offline transitions.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/silosync/internal/logging"
)

// Pinger checks reachability of the remote API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Transition is delivered to subscribers whenever the state changes.
type Transition struct {
	Online bool
	// Recovered is true for an offline to online transition.
	Recovered bool
	At        time.Time
}

type Options struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// Initial, when non-nil, seeds the state before the first probe.
	Initial *bool
}

type Monitor struct {
	pinger Pinger
	opts   Options
	log    logging.Logger

	mu             sync.RWMutex
	known          bool
	online         bool
	hasBeenOffline bool
	nextID         int
	subs           map[int]func(Transition)
}

func NewMonitor(p Pinger, opts Options, log logging.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	m := &Monitor{
		pinger: p,
		opts:   opts,
		log:    log.With("component", "network"),
		subs:   make(map[int]func(Transition)),
	}
	if opts.Initial != nil {
		m.known = true
		m.online = *opts.Initial
		m.hasBeenOffline = !*opts.Initial
	}
	return m
}

// IsOnline is false until the first successful observation.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// HasBeenOffline reports whether an offline period was observed since start
// or since the last ResetOfflineFlag.
func (m *Monitor) HasBeenOffline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasBeenOffline
}

func (m *Monitor) ResetOfflineFlag() {
	m.mu.Lock()
	m.hasBeenOffline = false
	m.mu.Unlock()
}

// SetOnline records an observation. Subscribers are notified only when the
// state actually changes (or on the very first observation).
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	wasKnown := m.known
	wasOnline := m.online
	m.known = true
	m.online = online
	if !online {
		m.hasBeenOffline = true
	}
	handlers := make([]func(Transition), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	tr := Transition{
		Online:    online,
		Recovered: online && wasKnown && !wasOnline,
		At:        time.Now(),
	}
	if online {
		m.log.Info(context.Background(), "remote API reachable", "recovered", tr.Recovered)
	} else {
		m.log.Warn(context.Background(), "remote API unreachable, switching to offline mode")
	}

	for _, h := range handlers {
		h(tr)
	}
}

// Subscribe registers fn for transitions and returns a function removing it.
func (m *Monitor) Subscribe(fn func(Transition)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Probe pings the API once and feeds the result into SetOnline.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	err := m.pinger.Ping(pctx)
	cancel()

	if err != nil {
		m.log.Debug(ctx, "probe failed", "error", err)
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
