// Package hub fans push messages out to the clients subscribed to the
// events websocket.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/push"
)

const writeTimeout = 5 * time.Second

// Hub manages websocket subscribers and broadcasts to all of them.
type Hub struct {
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	broadcast chan push.Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log logging.Logger
}

func New(log logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan push.Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Broadcast queues msg for every subscriber. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg push.Message) {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	select {
	case <-h.ctx.Done():
	case h.broadcast <- msg:
	default:
		h.log.Warn(h.ctx, "broadcast queue full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.log.Error(h.ctx, "failed to marshal push message", "error", err)
				continue
			}
			for _, conn := range h.snapshot() {
				ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.log.Debug(h.ctx, "push write failed", "error", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// ServeHTTP upgrades the request and registers the connection. A hello
// message is sent first so clients know the subscription is live.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	h.clientsMu.Lock()
	if h.ctx.Err() != nil {
		h.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.clientsMu.Unlock()
	h.log.Info(r.Context(), "push client connected", "clients", total)

	hello, _ := json.Marshal(push.Message{Type: push.Hello, At: time.Now()})
	ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
	err = conn.Write(ctx, websocket.MessageText, hello)
	cancel()
	if err != nil {
		h.removeClient(conn)
		return
	}

	h.wg.Add(1)
	go h.readLoop(conn)
}

// readLoop only notices disconnects; clients have nothing to say.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	total := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.Info(h.ctx, "push client disconnected", "clients", total)
}

// ClientCount returns the number of live subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and stops broadcasting.
func (h *Hub) Close() {
	h.cancel()

	h.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.wg.Wait()
}
