package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrDuplicateKey = errors.New("duplicate external_id")
	ErrInvalidValue = errors.New("value not allowed")
)

const (
	pgUniqueViolation   = "23505"
	externalIDKeyName   = "events_external_id_key"
	externalIDSQLiteCol = "events.external_id"
)

// isDuplicateExternalID reports whether err is a uniqueness violation on
// events.external_id. Other constraint failures are not matched.
func isDuplicateExternalID(err error) bool {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == pgUniqueViolation && pe.ConstraintName == externalIDKeyName
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
			strings.Contains(se.Error(), externalIDSQLiteCol)
	}
	return false
}
