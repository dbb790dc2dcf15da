// Package api exposes the record service over the REST contract the client
// speaks: /api/{kind} collections, /api/{kind}/{id} items, a health check
// and the sync push endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/push"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RecordService is the business logic behind the handlers.
type RecordService interface {
	List(ctx context.Context, kind models.Kind) ([]models.Record, error)
	Get(ctx context.Context, kind models.Kind, id string) (models.Record, error)
	Create(ctx context.Context, kind models.Kind, body models.Record) (models.Record, error)
	Update(ctx context.Context, kind models.Kind, id string, body models.Record) (models.Record, error)
	Delete(ctx context.Context, kind models.Kind, id string) error
	RequestSync()
}

type Options struct {
	// RequireAuth rejects requests without a valid session cookie.
	// The health check stays public.
	RequireAuth bool
	SecretKey   []byte
}

type handler struct {
	svc RecordService
	log logging.Logger
}

// NewRouter builds the HTTP handler. events serves the push websocket and
// may be nil.
func NewRouter(svc RecordService, events http.Handler, log logging.Logger, opts Options) http.Handler {
	h := &handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
	})

	r.Group(func(r chi.Router) {
		if opts.RequireAuth {
			r.Use(sessionAuth(opts.SecretKey, log))
		}

		r.Post("/api/sync/request", h.requestSync)
		if events != nil {
			r.Handle(push.EventsPath, events)
		}

		r.Route("/api/{kind}", func(r chi.Router) {
			r.Use(kindCtx)
			r.Get("/", h.list)
			r.Post("/", h.create)
			r.Get("/{id}", h.get)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.remove)
		})
	})

	return r
}

func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
