package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/client"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/push"
	"github.com/dmitrijs2005/silosync/internal/server/auth"
	"github.com/dmitrijs2005/silosync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/silosync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notes struct{ msgs []push.Message }

func (n *notes) Broadcast(m push.Message) { n.msgs = append(n.msgs, m) }

func newServer(t *testing.T, opts Options) (*httptest.Server, *notes) {
	t.Helper()
	n := &notes{}
	svc := services.NewRecordService(repomanager.NewInMemoryRepositoryManager(), n)
	srv := httptest.NewServer(NewRouter(svc, nil, logging.Nop(), opts))
	t.Cleanup(srv.Close)
	return srv, n
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRouter_Health(t *testing.T) {
	srv, _ := newServer(t, Options{})
	status, body := do(t, http.MethodGet, srv.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_CRUD(t *testing.T) {
	srv, n := newServer(t, Options{})

	status, body := do(t, http.MethodPost, srv.URL+"/api/clients", `{"client":{"name":"Acme"}}`)
	require.Equal(t, http.StatusCreated, status)
	created := body["client"].(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "Acme", created["name"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/clients", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["clients"], 1)

	status, body = do(t, http.MethodPut, srv.URL+"/api/clients/"+id, `{"phone":"555"}`)
	require.Equal(t, http.StatusOK, status)
	updated := body["client"].(map[string]any)
	assert.Equal(t, "Acme", updated["name"])
	assert.Equal(t, "555", updated["phone"])

	status, body = do(t, http.MethodGet, srv.URL+"/api/clients/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "555", body["client"].(map[string]any)["phone"])

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/clients/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/clients/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)

	assert.Len(t, n.msgs, 3)
}

func TestRouter_Errors(t *testing.T) {
	srv, _ := newServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown kind", http.MethodGet, "/api/tractors", "", http.StatusNotFound},
		{"unknown id", http.MethodPut, "/api/silos/nope", `{}`, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/api/silos/nope", "", http.StatusNotFound},
		{"bad body", http.MethodPost, "/api/silos", `[1,2]`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/silos", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestRouter_RequestSync(t *testing.T) {
	srv, n := newServer(t, Options{})
	status, _ := do(t, http.MethodPost, srv.URL+"/api/sync/request", "")
	assert.Equal(t, http.StatusAccepted, status)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, push.SyncRequested, n.msgs[0].Type)
}

func TestRouter_SessionAuth(t *testing.T) {
	secret := []byte("k")
	srv, _ := newServer(t, Options{RequireAuth: true, SecretKey: secret})

	status, _ := do(t, http.MethodGet, srv.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/silos", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	tok, err := auth.GenerateToken("op-1", secret, time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/silos", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: tok})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Del("Cookie")
	req.AddCookie(&http.Cookie{Name: common.SessionCookieName, Value: "garbage"})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// The HTTP client and the router agree on the contract.
func TestRouter_WithHTTPClient(t *testing.T) {
	secret := []byte("k")
	srv, _ := newServer(t, Options{RequireAuth: true, SecretKey: secret})
	tok, err := auth.GenerateToken("op-1", secret, time.Hour)
	require.NoError(t, err)

	c, err := client.NewHTTPClient(srv.URL, client.Options{SessionToken: tok})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	silo, err := c.Create(ctx, models.KindSilos, models.Record{"name": "North", "current_stock": 100.0})
	require.NoError(t, err)
	_, err = c.Create(ctx, models.KindOperations, models.Record{"type": "ingreso", "silo_id": silo.ID(), "quantity": 5.0})
	require.NoError(t, err)

	got, err := c.Get(ctx, models.KindSilos, silo.ID())
	require.NoError(t, err)
	assert.Equal(t, 105.0, got["current_stock"])

	list, err := c.List(ctx, models.KindOperations)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = c.Delete(ctx, models.KindSilos, "missing")
	assert.ErrorIs(t, err, client.ErrNotFound)

	require.NoError(t, c.RequestSync(ctx))
}
