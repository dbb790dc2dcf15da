// Package events is a small in-process observer registry. Components publish
// typed events; the CLI and tests subscribe to them.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	QueueDepthChanged       Type = "queue-depth-changed"
	SyncStarted             Type = "sync-started"
	SyncCompleted           Type = "sync-completed"
	BackgroundSyncRequested Type = "background-sync-requested"
	NetworkChanged          Type = "network-changed"
	CacheRefreshed          Type = "cache-refreshed"
)

// Event is delivered to handlers. Payload depends on Type:
//
//	QueueDepthChanged       int (queue length)
//	SyncCompleted           *models.SyncResult
//	NetworkChanged          bool (online)
//	CacheRefreshed          map[models.Kind]time.Duration (cache ages)
type Event struct {
	Type    Type
	Payload any
	At      time.Time
}

type Handler func(Event)

type subscription struct {
	id int
	h  Handler
}

// Bus dispatches events synchronously on the publisher's goroutine. A
// panicking handler is isolated from the others.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Type][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]subscription)}
}

// On registers h for t and returns a function that removes it.
func (b *Bus) On(t Type, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[t]
			for i, s := range list {
				if s.id == id {
					b.subs[t] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers an event to every handler of its type. A nil Bus is a no-op.
func (b *Bus) Publish(t Type, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[t]))
	for _, s := range b.subs[t] {
		handlers = append(handlers, s.h)
	}
	b.mu.RUnlock()

	ev := Event{Type: t, Payload: payload, At: time.Now()}
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(ev)
		}()
	}
}
