package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wrestfed/internal/storage"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

var testDefaults = Defaults{Status: "active", Category: "event", TitleMax: 100}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "events.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func count(t *testing.T, st storage.Store) int {
	t.Helper()
	n, err := st.CountEvents(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func post(id int64, text string) vk.Post {
	return vk.Post{ID: id, Text: text, Date: 1700000000 + id}
}

// faultyStore wraps a real store and tampers with the transaction.
type faultyStore struct {
	storage.Store
	failInsertAt int  // 1-based insert that fails; 0 disables
	hideExisting bool // pretend nothing is stored yet
}

type faultyTx struct {
	storage.EventTx
	s       *faultyStore
	inserts int
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) InTx(ctx context.Context, fn func(tx storage.EventTx) error) error {
	return f.Store.InTx(ctx, func(tx storage.EventTx) error {
		return fn(&faultyTx{EventTx: tx, s: f})
	})
}

func (t *faultyTx) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if t.s.hideExisting {
		return map[string]struct{}{}, nil
	}
	return t.EventTx.ExistingExternalIDs(ctx, ids)
}

func (t *faultyTx) Insert(ctx context.Context, ev storage.Event) error {
	t.inserts++
	if t.s.failInsertAt > 0 && t.inserts == t.s.failInsertAt {
		return errInjected
	}
	return t.EventTx.Insert(ctx, ev)
}

func TestIngestSkipsKnownPosts(t *testing.T) {
	st := openStore(t)
	p := NewPersister(st, testDefaults, logx.Nop())
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []vk.Post{post(100, "old")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := p.Ingest(ctx, []vk.Post{post(100, "old"), post(101, "new")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(created) != 1 || created[0].ExternalID != "101" {
		t.Fatalf("created = %+v, want only 101", created)
	}
	if n := count(t, st); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	st := openStore(t)
	p := NewPersister(st, testDefaults, logx.Nop())
	batch := []vk.Post{post(1, "a"), post(2, "b"), post(3, "c")}

	first, err := p.Ingest(context.Background(), batch)
	if err != nil || len(first) != 3 {
		t.Fatalf("first = %d err = %v", len(first), err)
	}
	second, err := p.Ingest(context.Background(), batch)
	if err != nil || len(second) != 0 {
		t.Fatalf("second = %d err = %v", len(second), err)
	}
	if n := count(t, st); n != 3 {
		t.Fatalf("rows = %d, want 3", n)
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	st := openStore(t)
	created, err := NewPersister(st, testDefaults, logx.Nop()).Ingest(context.Background(), []vk.Post{})
	if err != nil || len(created) != 0 {
		t.Fatalf("created = %d err = %v", len(created), err)
	}
}

func TestIngestIsAtomic(t *testing.T) {
	st := openStore(t)
	faulty := &faultyStore{Store: st, failInsertAt: 3}
	p := NewPersister(faulty, testDefaults, logx.Nop())

	batch := []vk.Post{post(1, "a"), post(2, "b"), post(3, "c"), post(4, "d")}
	_, err := p.Ingest(context.Background(), batch)
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected", err)
	}
	if n := count(t, st); n != 0 {
		t.Fatalf("rows = %d after failed batch, want 0", n)
	}
}

func TestIngestDuplicateKeyIsNoop(t *testing.T) {
	st := openStore(t)
	if _, err := NewPersister(st, testDefaults, logx.Nop()).Ingest(context.Background(), []vk.Post{post(7, "x")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The lookup misses 7 as if another cycle committed it in between.
	racing := NewPersister(&faultyStore{Store: st, hideExisting: true}, testDefaults, logx.Nop())
	created, err := racing.Ingest(context.Background(), []vk.Post{post(8, "y"), post(7, "x")})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if len(created) != 0 {
		t.Fatalf("created = %d, want 0", len(created))
	}
	if n := count(t, st); n != 1 {
		t.Fatalf("rows = %d, want 1 (batch rolled back)", n)
	}
}

func TestIngestCollapsesRepeatedIDs(t *testing.T) {
	st := openStore(t)
	created, err := NewPersister(st, testDefaults, logx.Nop()).Ingest(context.Background(), []vk.Post{post(5, "first"), post(5, "again")})
	if err != nil || len(created) != 1 || created[0].Body != "first" {
		t.Fatalf("created = %+v err = %v", created, err)
	}
}

func TestBuildEventPlaceholders(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := BuildEvent(vk.Post{ID: 42}, testDefaults, now)

	if ev.Title != TitlePlaceholder || ev.Body != BodyPlaceholder {
		t.Fatalf("title/body = %q/%q", ev.Title, ev.Body)
	}
	if ev.PublishedAt != nil {
		t.Fatalf("published_at = %v, want nil", ev.PublishedAt)
	}
	if ev.ExternalID != "42" || ev.Status != "active" || ev.Category != "event" || !ev.CreatedAt.Equal(now) {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Images == nil || len(ev.Images) != 0 {
		t.Fatalf("images = %#v", ev.Images)
	}
}

func TestBuildEventTitleTruncation(t *testing.T) {
	text := strings.Repeat("Борьба", 30) // 180 runes
	ev := BuildEvent(vk.Post{ID: 1, Text: text, Date: 1700000000}, testDefaults, time.Now())

	if got := len([]rune(ev.Title)); got != 100 {
		t.Fatalf("title runes = %d, want 100", got)
	}
	if ev.Body != text {
		t.Fatal("body must keep the full text")
	}
	if ev.PublishedAt == nil || ev.PublishedAt.Unix() != 1700000000 {
		t.Fatalf("published_at = %v", ev.PublishedAt)
	}
}

func TestPhotoURLs(t *testing.T) {
	photo := func(sizes ...vk.PhotoSize) vk.Attachment {
		return vk.Attachment{Type: "photo", Photo: &vk.Photo{Sizes: sizes}}
	}
	atts := []vk.Attachment{
		photo(
			vk.PhotoSize{URL: "a-small", Width: 100, Height: 100},
			vk.PhotoSize{URL: "a-big", Width: 800, Height: 600},
			vk.PhotoSize{URL: "a-tall", Width: 300, Height: 900},
		),
		{Type: "video"},
		photo(vk.PhotoSize{URL: "b-only", Width: 10, Height: 10}),
		photo(),
		photo(
			vk.PhotoSize{URL: "c-wide", Width: 1280, Height: 100},
			vk.PhotoSize{URL: "c-square", Width: 400, Height: 400},
		),
	}
	got := PhotoURLs(atts)
	want := []string{"a-big", "b-only", "c-square"}
	if len(got) != len(want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("urls = %v, want %v", got, want)
		}
	}
}
