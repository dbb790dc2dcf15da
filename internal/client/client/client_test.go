package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL, opts)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient("ftp://x", Options{})
	require.Error(t, err)
	_, err = NewHTTPClient("://", Options{})
	require.Error(t, err)
}

func TestList_DecodesCollection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/silos", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"silos": []map[string]any{{"id": "s1"}, {"id": "s2"}}})
	}, Options{})

	recs, err := c.List(context.Background(), models.KindSilos)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s2", recs[1].ID())
}

func TestList_MissingFieldIsAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"other": []any{}})
	}, Options{})

	_, err := c.List(context.Background(), models.KindSilos)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestCreate_SendsBodyAndUnwrapsSingular(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/companies", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Acme", in["name"])

		in["id"] = "srv-1"
		writeJSON(w, http.StatusCreated, map[string]any{"company": in})
	}, Options{})

	rec, err := c.Create(context.Background(), models.KindCompanies, models.Record{"id": "temp_1", "name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", rec.ID())
}

func TestUpdateAndGet_EscapeID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/drivers/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, map[string]any{"driver": map[string]any{"id": "a/b"}})
	}, Options{})

	rec, err := c.Update(context.Background(), models.KindDrivers, "a/b", models.Record{"id": "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "a/b", rec.ID())

	rec, err = c.Get(context.Background(), models.KindDrivers, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", rec.ID())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusForbidden, ErrUnauthorized, false},
		{http.StatusUnprocessableEntity, nil, false},
		{http.StatusConflict, nil, false},
		{http.StatusTooManyRequests, ErrUnavailable, true},
		{http.StatusInternalServerError, ErrUnavailable, true},
		{http.StatusServiceUnavailable, ErrUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}, Options{})

			err := c.Delete(context.Background(), models.KindClients, "1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Body)
			assert.Equal(t, tt.status, StatusCode(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestTransportFailure_IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url, Options{Timeout: time.Second})
	require.NoError(t, err)

	err = c.Ping(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsRetryable(err))
	assert.Zero(t, StatusCode(err))
}

func TestTimeout_IsRetryable(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	}, Options{Timeout: 20 * time.Millisecond})
	defer close(release)

	_, err := c.List(context.Background(), models.KindUsers)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestSessionCookie_IsSent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(common.SessionCookieName)
		if err != nil || ck.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}, Options{SessionToken: "tok"})

	require.NoError(t, c.Ping(context.Background()))
}

func TestIsRetryable_Plain(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
}
