package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/logging"
)

type Handler func(ctx context.Context, msg Message)

type Options struct {
	// SessionToken is sent as the session cookie.
	SessionToken string
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// Listener keeps a websocket to the server open and hands every message to
// its handler. Lost connections are redialed with exponential backoff.
type Listener struct {
	url     string
	opts    Options
	handler Handler
	log     logging.Logger

	connected atomic.Bool
}

// EventsURL turns the API base URL into the push endpoint URL.
func EventsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + EventsPath
	return u.String(), nil
}

func NewListener(serverURL string, h Handler, log logging.Logger, opts Options) (*Listener, error) {
	u, err := EventsURL(serverURL)
	if err != nil {
		return nil, err
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * opts.MinBackoff
	}
	return &Listener{url: u, opts: opts, handler: h, log: log.With("component", "push")}, nil
}

// Connected reports whether a connection is currently open.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Run dials and reads until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.opts.MinBackoff
	for {
		started := time.Now()
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a connection that lived a while resets the backoff
		if time.Since(started) > l.opts.MaxBackoff {
			backoff = l.opts.MinBackoff
		}
		l.log.Debug(ctx, "push connection lost", "error", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff = min(backoff*2, l.opts.MaxBackoff)
	}
}

func (l *Listener) session(ctx context.Context) error {
	header := http.Header{}
	if l.opts.SessionToken != "" {
		header.Set("Cookie", (&http.Cookie{Name: common.SessionCookieName, Value: l.opts.SessionToken}).String())
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, l.url, &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", l.url, err)
	}
	defer conn.CloseNow()

	l.connected.Store(true)
	defer l.connected.Store(false)
	l.log.Info(ctx, "push connected", "url", l.url)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("server closed the connection")
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Warn(ctx, "malformed push message", "error", err)
			continue
		}
		if msg.Type == Hello || l.handler == nil {
			continue
		}
		l.handler(ctx, msg)
	}
}
