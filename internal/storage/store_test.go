package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "wrestfed/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "events.db"),
		BusyTimeout: time.Second,
		Statuses:    []string{"active", "inactive", "pending"},
		Categories:  []string{"competition", "event", "sponsor"},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func insertAll(t *testing.T, st Store, evs ...Event) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx EventTx) error {
		for _, ev := range evs {
			if err := tx.Insert(context.Background(), ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func event(id string, published int64) Event {
	ev := Event{
		ExternalID: id,
		Title:      "title " + id,
		Body:       "body " + id,
		Images:     []string{"https://img/" + id},
		Status:     "active",
		Category:   "event",
		CreatedAt:  time.Unix(1700000000, 0),
	}
	if published > 0 {
		p := time.Unix(published, 0).UTC()
		ev.PublishedAt = &p
	}
	return ev
}

func TestInsertAndGet(t *testing.T) {
	st := openTestStore(t)
	insertAll(t, st, event("100", 1700000100))

	got, err := st.GetEvent(context.Background(), "100")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "title 100" || len(got.Images) != 1 || got.Images[0] != "https://img/100" {
		t.Fatalf("event = %+v", got)
	}
	if got.PublishedAt == nil || got.PublishedAt.Unix() != 1700000100 {
		t.Fatalf("published_at = %v", got.PublishedAt)
	}
	if !got.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("created_at = %v", got.CreatedAt)
	}

	if _, err := st.GetEvent(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing event err = %v", err)
	}
}

func TestInsertDuplicateExternalID(t *testing.T) {
	st := openTestStore(t)
	insertAll(t, st, event("100", 0))

	err := st.InTx(context.Background(), func(tx EventTx) error {
		return tx.Insert(context.Background(), event("100", 0))
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	st := openTestStore(t)
	boom := errors.New("boom")
	err := st.InTx(context.Background(), func(tx EventTx) error {
		if err := tx.Insert(context.Background(), event("1", 0)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	n, err := st.CountEvents(context.Background(), Filter{})
	if err != nil || n != 0 {
		t.Fatalf("count = %d err = %v", n, err)
	}
}

func TestExistingExternalIDs(t *testing.T) {
	st := openTestStore(t)
	insertAll(t, st, event("100", 0), event("102", 0))

	var got map[string]struct{}
	err := st.InTx(context.Background(), func(tx EventTx) error {
		var err error
		got, err = tx.ExistingExternalIDs(context.Background(), []string{"100", "101", "102"})
		return err
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("existing = %v", got)
	}
	for _, id := range []string{"100", "102"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("missing %s in %v", id, got)
		}
	}
}

func TestListAndCountWithFilter(t *testing.T) {
	st := openTestStore(t)
	insertAll(t, st, event("1", 100), event("2", 300), event("3", 200), event("4", 0))
	ctx := context.Background()
	if err := st.SetCategory(ctx, "3", "Sponsor"); err != nil {
		t.Fatalf("set category: %v", err)
	}

	all, err := st.ListEvents(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var order []string
	for _, ev := range all {
		order = append(order, ev.ExternalID)
	}
	if want := []string{"2", "3", "1", "4"}; len(order) != 4 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] || order[3] != want[3] {
		t.Fatalf("order = %v, want %v", order, want)
	}

	n, err := st.CountEvents(ctx, Filter{Category: "sponsor"})
	if err != nil || n != 1 {
		t.Fatalf("sponsor count = %d err = %v", n, err)
	}
	page, err := st.ListEvents(ctx, Filter{Category: "event", Limit: 1, Offset: 1})
	if err != nil || len(page) != 1 || page[0].ExternalID != "1" {
		t.Fatalf("page = %+v err = %v", page, err)
	}
}

func TestSetStatusValidation(t *testing.T) {
	st := openTestStore(t)
	insertAll(t, st, event("1", 0))
	ctx := context.Background()

	cases := []struct {
		name   string
		id     string
		status string
		want   error
	}{
		{"ok", "1", "pending", nil},
		{"unknown value", "1", "archived", ErrInvalidValue},
		{"unknown id", "9", "inactive", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := st.SetStatus(ctx, tc.id, tc.status)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	got, _ := st.GetEvent(ctx, "1")
	if got.Status != "pending" {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	cfg := Config{Driver: "sqlite", Path: path}
	st, err := Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	insertAll(t, st, event("1", 0))
	_ = st.Close()

	st, err = Open(context.Background(), cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if n, _ := st.CountEvents(context.Background(), Filter{}); n != 1 {
		t.Fatalf("count after reopen = %d", n)
	}
}

func TestRebind(t *testing.T) {
	s := &sqlStore{dialect: "postgres"}
	if got := s.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	s.dialect = "sqlite"
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestPing(t *testing.T) {
	st := openTestStore(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
