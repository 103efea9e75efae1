package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	logx "wrestfed/pkg/logx"
)

// Store is the events table API used by the pipeline and the bot.
type Store interface {
	// InTx runs fn inside one transaction. It commits when fn returns nil
	// and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx EventTx) error) error

	ListEvents(ctx context.Context, f Filter) ([]Event, error)
	CountEvents(ctx context.Context, f Filter) (int, error)
	GetEvent(ctx context.Context, externalID string) (Event, error)
	SetStatus(ctx context.Context, externalID, status string) error
	SetCategory(ctx context.Context, externalID, category string) error

	Ping(ctx context.Context) error
	Close() error
}

// EventTx is the transactional write side used by ingestion.
type EventTx interface {
	// ExistingExternalIDs returns the subset of ids already stored.
	ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// Insert adds ev. A clash on external_id yields ErrDuplicateKey.
	Insert(ctx context.Context, ev Event) error
}

// queryer is the part of *sql.DB and *sql.Tx the store needs.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlStore struct {
	db         *sql.DB
	dialect    string
	log        logx.Logger
	statuses   []string
	categories []string
}

// rebind turns ? placeholders into $n for postgres.
func (s *sqlStore) rebind(q string) string {
	if s.dialect != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) InTx(ctx context.Context, fn func(tx EventTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqlTx{s: s, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn("rollback failed", logx.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isDuplicateExternalID(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	s *sqlStore
	q queryer
}

func (t *sqlTx) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := t.q.QueryContext(ctx, t.s.rebind(`SELECT external_id FROM events WHERE external_id IN (`+ph+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("lookup external ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (t *sqlTx) Insert(ctx context.Context, ev Event) error {
	images := ev.Images
	if images == nil {
		images = []string{}
	}
	imgJSON, err := json.Marshal(images)
	if err != nil {
		return err
	}
	var published any
	if ev.PublishedAt != nil {
		published = ev.PublishedAt.UTC()
	}
	_, err = t.q.ExecContext(ctx, t.s.rebind(
		`INSERT INTO events(external_id, title, body, images, status, category, created_at, published_at)
		 VALUES(?,?,?,?,?,?,?,?)`),
		ev.ExternalID, ev.Title, ev.Body, string(imgJSON), ev.Status, ev.Category, ev.CreatedAt.UTC(), published,
	)
	if err != nil {
		if isDuplicateExternalID(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert event %s: %w", ev.ExternalID, err)
	}
	return nil
}

const eventColumns = `id, external_id, title, body, images, status, category, created_at, published_at`

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *sqlStore) ListEvents(ctx context.Context, f Filter) ([]Event, error) {
	where, args := whereClause(f)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(f.Offset, 0))
	q := `SELECT ` + eventColumns + ` FROM events` + where +
		` ORDER BY published_at IS NULL, published_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqlStore) CountEvents(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM events`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *sqlStore) GetEvent(ctx context.Context, externalID string) (Event, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+eventColumns+` FROM events WHERE external_id = ?`), externalID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return ev, err
}

func (s *sqlStore) SetStatus(ctx context.Context, externalID, status string) error {
	return s.setField(ctx, "status", s.statuses, externalID, status)
}

func (s *sqlStore) SetCategory(ctx context.Context, externalID, category string) error {
	return s.setField(ctx, "category", s.categories, externalID, category)
}

// setField is only called with the fixed column names above.
func (s *sqlStore) setField(ctx context.Context, column string, allowed []string, externalID, value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || (len(allowed) > 0 && !slices.Contains(allowed, value)) {
		return fmt.Errorf("%w: %s %q (allowed: %s)", ErrInvalidValue, column, value, strings.Join(allowed, ", "))
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE events SET `+column+` = ? WHERE external_id = ?`), value, externalID)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (Event, error) {
	var (
		ev        Event
		images    string
		published sql.NullTime
	)
	if err := sc.Scan(&ev.ID, &ev.ExternalID, &ev.Title, &ev.Body, &images, &ev.Status, &ev.Category, &ev.CreatedAt, &published); err != nil {
		return Event{}, err
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &ev.Images); err != nil {
			return Event{}, fmt.Errorf("event %s: decode images: %w", ev.ExternalID, err)
		}
	}
	if published.Valid {
		t := published.Time.UTC()
		ev.PublishedAt = &t
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}

