package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"wrestfed/internal/ingest"
	"wrestfed/internal/notifier"
	"wrestfed/internal/storage"
	"wrestfed/internal/transport/transporttest"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

type env struct {
	store   storage.Store
	adapter *transporttest.Adapter
	body    atomic.Value // string
	calls   atomic.Int32
	p       *Pipeline
}

func newEnv(t *testing.T, lease Lease) *env {
	t.Helper()
	e := &env{adapter: transporttest.New()}
	e.body.Store(`{"response":{"count":0,"items":[]}}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		_, _ = w.Write([]byte(e.body.Load().(string)))
	}))
	t.Cleanup(srv.Close)

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "events.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	e.store = st

	fetcher := vk.New(vk.Config{
		AccessToken: "t", GroupID: 1, APIVersion: "5.131", BaseURL: srv.URL, Count: 10,
		MaxAttempts: 3, RetryBase: time.Millisecond, RetryMaxDelay: time.Millisecond,
	}, nil, nil, logx.Nop())
	persister := ingest.NewPersister(st, ingest.Defaults{Status: "active", Category: "event", TitleMax: 100}, logx.Nop())
	n := notifier.New(notifier.Config{ChatID: 42, RatePerSec: 100}, e.adapter, logx.Nop())
	e.p = New(Config{Count: 10, LeaseTTL: time.Minute}, fetcher, persister, n, lease, logx.Nop())
	return e
}

func TestCycleEmptyWall(t *testing.T) {
	e := newEnv(t, nil)
	res := e.p.Run(context.Background())
	if res.Err != nil || res.Fetched != 0 || res.Created != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(e.adapter.Sent()) != 0 {
		t.Fatal("notifier must not run for an empty wall")
	}
	if last, ok := e.p.Last(); !ok || last.ID != res.ID {
		t.Fatalf("last = %+v", last)
	}
}

func TestCycleStoresAndNotifiesOnlyNewPosts(t *testing.T) {
	e := newEnv(t, nil)
	e.body.Store(`{"response":{"items":[{"id":100,"text":"Первенство","date":1700000000}]}}`)
	if res := e.p.Run(context.Background()); res.Created != 1 || res.Notified != 1 {
		t.Fatalf("first cycle = %+v", res)
	}

	e.body.Store(`{"response":{"items":[
		{"id":101,"text":"","date":1700000500},
		{"id":100,"text":"Первенство","date":1700000000}
	]}}`)
	res := e.p.Run(context.Background())
	if res.Err != nil || res.Fetched != 2 || res.Created != 1 || res.Notified != 1 {
		t.Fatalf("second cycle = %+v", res)
	}
	sent := e.adapter.Sent()
	if len(sent) != 2 || sent[1].Text != "Новое событие: Без заголовка\nID: 101" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestCycleAbortsOnFetchError(t *testing.T) {
	e := newEnv(t, nil)
	e.body.Store(`{"error":{"error_code":100,"error_msg":"invalid owner_id"}}`)

	res := e.p.Run(context.Background())
	var apiErr *vk.APIError
	if !errors.As(res.Err, &apiErr) {
		t.Fatalf("err = %v", res.Err)
	}
	if e.calls.Load() != 1 {
		t.Fatalf("api calls = %d", e.calls.Load())
	}
	if n, _ := e.store.CountEvents(context.Background(), storage.Filter{}); n != 0 {
		t.Fatalf("rows = %d", n)
	}
	if len(e.adapter.Sent()) != 0 {
		t.Fatal("notifier ran after fetch failure")
	}

	// The next cycle is unaffected.
	e.body.Store(`{"response":{"items":[{"id":5,"text":"ok","date":1}]}}`)
	if res := e.p.Run(context.Background()); res.Err != nil || res.Created != 1 {
		t.Fatalf("next cycle = %+v", res)
	}
}

type stubLease struct {
	held     bool
	acquired int
	released int
}

func (l *stubLease) Acquire(context.Context, time.Duration) (func(context.Context) error, error) {
	if l.held {
		return nil, ErrLeaseHeld
	}
	l.acquired++
	return func(context.Context) error { l.released++; return nil }, nil
}

func TestCycleLease(t *testing.T) {
	lease := &stubLease{held: true}
	e := newEnv(t, lease)

	res := e.p.Run(context.Background())
	if !res.Skipped || res.Err != nil || e.calls.Load() != 0 {
		t.Fatalf("held lease: result = %+v calls = %d", res, e.calls.Load())
	}

	lease.held = false
	res = e.p.Run(context.Background())
	if res.Skipped || res.Err != nil {
		t.Fatalf("free lease: result = %+v", res)
	}
	if lease.acquired != 1 || lease.released != 1 {
		t.Fatalf("acquired = %d released = %d", lease.acquired, lease.released)
	}
}
