// Package storage persists mirrored wall posts in the events table.
//
// Two drivers are supported:
//   - "sqlite": a local database file (modernc.org/sqlite, no cgo)
//   - "postgres": a PostgreSQL server through pgx
//
// The schema is managed by embedded golang-migrate migrations and enforces
// external_id uniqueness; Insert reports a violation as ErrDuplicateKey.
package storage
