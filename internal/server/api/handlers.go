package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type ctxKey string

const kindKey ctxKey = "kind"

// kindCtx rejects unknown entity kinds with 404 before any handler runs.
func kindCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := models.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindKey, kind)))
	})
}

func kindFrom(r *http.Request) models.Kind {
	k, _ := r.Context().Value(kindKey).(models.Kind)
	return k
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	recs, err := h.svc.List(r.Context(), kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{string(kind): recs})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	rec, err := h.svc.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{kind.Singular(): rec})
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	body, err := readRecord(r, kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Create(r.Context(), kind, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{kind.Singular(): rec})
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	kind := kindFrom(r)
	body, err := readRecord(r, kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.svc.Update(r.Context(), kind, chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{kind.Singular(): rec})
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), kindFrom(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) requestSync(w http.ResponseWriter, r *http.Request) {
	h.svc.RequestSync()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "requested"})
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, common.ErrorNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// readRecord accepts either a bare record or one wrapped under the kind's
// singular name, e.g. {"silo": {...}}.
func readRecord(r *http.Request, kind models.Kind) (models.Record, error) {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, errors.New("body must be a JSON object")
	}
	if body == nil {
		return nil, errors.New("body must be a JSON object")
	}
	if len(body) == 1 {
		if inner, ok := body[kind.Singular()].(map[string]any); ok {
			return models.Record(inner), nil
		}
	}
	return models.Record(body), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
