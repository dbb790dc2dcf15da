package services

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/silosync/internal/client/client"
	"github.com/dmitrijs2005/silosync/internal/client/events"
	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/client/store"
	"github.com/dmitrijs2005/silosync/internal/logging"
	"github.com/dmitrijs2005/silosync/internal/timex"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory remote API. fail, when set, can veto any call.
type fakeAPI struct {
	mu    sync.Mutex
	data  map[models.Kind][]models.Record
	seq   int
	calls []string
	clock time.Time

	fail func(method string, kind models.Kind, id string) error
	// block, when set, is waited on by Create.
	block chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		data:  make(map[models.Kind][]models.Record),
		clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAPI) record(method string, kind models.Kind, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+string(kind)+"/"+id)
	fail := f.fail
	f.mu.Unlock()
	if fail != nil {
		return fail(method, kind, id)
	}
	return nil
}

func (f *fakeAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(method) && c[:len(method)] == method {
			n++
		}
	}
	return n
}

func (f *fakeAPI) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) tick() string {
	f.clock = f.clock.Add(time.Second)
	return timex.FormatTimestamp(f.clock)
}

func (f *fakeAPI) put(kind models.Kind, rec models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.data[kind] {
		if r.ID() == rec.ID() {
			f.data[kind][i] = rec.Clone()
			return
		}
	}
	f.data[kind] = append(f.data[kind], rec.Clone())
}

func (f *fakeAPI) find(kind models.Kind, id string) (models.Record, int) {
	for i, r := range f.data[kind] {
		if r.ID() == id {
			return r, i
		}
	}
	return nil, -1
}

func (f *fakeAPI) server(kind models.Kind, id string) models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, _ := f.find(kind, id)
	return r.Clone()
}

func notFound() error {
	return fmt.Errorf("fake: %w", &client.APIError{StatusCode: http.StatusNotFound})
}

func (f *fakeAPI) Ping(ctx context.Context) error {
	return f.record("PING", "", "")
}

func (f *fakeAPI) List(ctx context.Context, kind models.Kind) ([]models.Record, error) {
	if err := f.record("LIST", kind, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Record, 0, len(f.data[kind]))
	for _, r := range f.data[kind] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeAPI) Get(ctx context.Context, kind models.Kind, id string) (models.Record, error) {
	if err := f.record("GET", kind, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, _ := f.find(kind, id)
	if r == nil {
		return nil, notFound()
	}
	return r.Clone(), nil
}

func (f *fakeAPI) Create(ctx context.Context, kind models.Kind, rec models.Record) (models.Record, error) {
	if f.block != nil {
		<-f.block
	}
	if err := f.record("POST", kind, ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	out := rec.Clone()
	out["id"] = fmt.Sprintf("%d", 100+f.seq)
	ts := f.tick()
	out["created_at"] = ts
	out["updated_at"] = ts
	f.data[kind] = append(f.data[kind], out)
	return out.Clone(), nil
}

func (f *fakeAPI) Update(ctx context.Context, kind models.Kind, id string, rec models.Record) (models.Record, error) {
	if err := f.record("PUT", kind, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, i := f.find(kind, id)
	if cur == nil {
		return nil, notFound()
	}
	out := cur.Merge(rec)
	out["id"] = id
	out["created_at"] = cur["created_at"]
	out["updated_at"] = f.tick()
	f.data[kind][i] = out
	return out.Clone(), nil
}

func (f *fakeAPI) Delete(ctx context.Context, kind models.Kind, id string) error {
	if err := f.record("DELETE", kind, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, i := f.find(kind, id)
	if i < 0 {
		return notFound()
	}
	f.data[kind] = append(f.data[kind][:i], f.data[kind][i+1:]...)
	return nil
}

func (f *fakeAPI) RequestSync(ctx context.Context) error {
	return f.record("SYNCREQ", "", "")
}

type switchNet struct {
	mu     sync.Mutex
	online bool
}

func (n *switchNet) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *switchNet) set(v bool) {
	n.mu.Lock()
	n.online = v
	n.mu.Unlock()
}

type fixture struct {
	api    *fakeAPI
	store  *store.LocalStore
	net    *switchNet
	data   *DataService
	engine *SyncEngine
	bus    *events.Bus
}

func newFixture(t *testing.T, opts SyncOptions) *fixture {
	t.Helper()
	bus := events.NewBus()
	st := store.New(filepath.Join(t.TempDir(), "cache.db"), bus, logging.Nop())
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	api := newFakeAPI()
	net := &switchNet{}
	data := NewDataService(api, st, net, logging.Nop(), DataOptions{})
	engine := NewSyncEngine(api, st, data, bus, logging.Nop(), opts)
	return &fixture{api: api, store: st, net: net, data: data, engine: engine, bus: bus}
}

func (fx *fixture) queue(t *testing.T) []models.PendingAction {
	t.Helper()
	q, err := fx.store.ListQueue(context.Background())
	require.NoError(t, err)
	return q
}

func (fx *fixture) cached(t *testing.T, kind models.Kind, id string) models.Record {
	t.Helper()
	r, err := fx.store.GetOne(context.Background(), kind, id)
	require.NoError(t, err)
	return r
}

// requireConsistent checks that state and cache hold the same records for kind.
func (fx *fixture) requireConsistent(t *testing.T, kind models.Kind) {
	t.Helper()
	cached, err := fx.store.GetAll(context.Background(), kind)
	require.NoError(t, err)

	want := make(map[string]models.Record, len(cached))
	for _, r := range cached {
		want[r.ID()] = r
	}
	got := make(map[string]models.Record)
	for _, r := range fx.data.List(kind) {
		got[r.ID()] = r
	}
	require.Equal(t, want, got, "state and cache differ for %s", kind)
}
