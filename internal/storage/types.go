package storage

import "time"

// Config configures storage.
type Config struct {
	Driver      string // "sqlite" or "postgres"
	Path        string // sqlite database file
	DSN         string // postgres connection string
	BusyTimeout time.Duration

	// Statuses and Categories restrict SetStatus and SetCategory.
	// Empty means any value is accepted.
	Statuses   []string
	Categories []string
}

// Event is one mirrored wall post.
type Event struct {
	ID          int64
	ExternalID  string
	Title       string
	Body        string
	Images      []string
	Status      string
	Category    string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Filter narrows ListEvents and CountEvents. Zero fields match everything.
type Filter struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}
