package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
)

// API is the remote contract consumed by the data service and the sync engine.
type API interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, kind models.Kind) ([]models.Record, error)
	Get(ctx context.Context, kind models.Kind, id string) (models.Record, error)
	Create(ctx context.Context, kind models.Kind, rec models.Record) (models.Record, error)
	Update(ctx context.Context, kind models.Kind, id string, rec models.Record) (models.Record, error)
	Delete(ctx context.Context, kind models.Kind, id string) error
	RequestSync(ctx context.Context) error
}

// HTTPClient implements API over net/http.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
}

var _ API = (*HTTPClient)(nil)

type Options struct {
	// Timeout bounds every request. Zero means 10s.
	Timeout time.Duration
	// SessionToken seeds the session cookie.
	SessionToken string
	// Transport overrides http.DefaultTransport (tests).
	Transport http.RoundTripper
}

func NewHTTPClient(serverURL string, opts Options) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", serverURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if opts.SessionToken != "" {
		jar.SetCookies(u, []*http.Cookie{{Name: common.SessionCookieName, Value: opts.SessionToken, Path: "/"}})
	}

	return &HTTPClient{
		baseURL: u,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
	}, nil
}

// BaseURL is the server root the client was built for.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL.String()
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *HTTPClient) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	var body map[string][]models.Record
	if err := c.do(ctx, http.MethodGet, collectionPath(kind), nil, &body); err != nil {
		return nil, err
	}
	recs, ok := body[string(kind)]
	if !ok {
		return nil, fmt.Errorf("list %s: response has no %q field", kind, kind)
	}
	if recs == nil {
		recs = []models.Record{}
	}
	return recs, nil
}

func (c *HTTPClient) Get(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	return c.single(ctx, http.MethodGet, kind, itemPath(kind, id), nil)
}

func (c *HTTPClient) Create(ctx context.Context, kind models.Kind, rec models.Record) (models.Record, error) {
	return c.single(ctx, http.MethodPost, kind, collectionPath(kind), rec)
}

func (c *HTTPClient) Update(ctx context.Context, kind models.Kind, id string, rec models.Record) (models.Record, error) {
	return c.single(ctx, http.MethodPut, kind, itemPath(kind, id), rec)
}

// Delete returns ErrNotFound (wrapped in *APIError) on 404; callers that
// treat an already deleted record as success check for it.
func (c *HTTPClient) Delete(ctx context.Context, kind models.Kind, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath(kind, id), nil, nil)
}

// RequestSync asks the server to tell every connected client to sync.
func (c *HTTPClient) RequestSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/sync/request", nil, nil)
}

func (c *HTTPClient) single(ctx context.Context, method string, kind models.Kind, path string, in models.Record) (models.Record, error) {
	var body map[string]models.Record
	if err := c.do(ctx, method, path, in, &body); err != nil {
		return nil, err
	}
	rec, ok := body[kind.Singular()]
	if !ok || rec == nil {
		return nil, fmt.Errorf("%s %s: response has no %q field", method, path, kind.Singular())
	}
	return rec, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in any, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %w", method, path, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func collectionPath(kind models.Kind) string {
	return "/api/" + string(kind)
}

func itemPath(kind models.Kind, id string) string {
	return "/api/" + string(kind) + "/" + url.PathEscape(id)
}
