package notifier

import (
	"errors"
	"time"
)

// ErrNoDestination is recorded on every Delivery of a call made while no
// destination chat is configured.
var ErrNoDestination = errors.New("no notification destination configured")

type Config struct {
	ChatID         int64
	ThreadID       int
	FallbackChatID int64
	SendTimeout    time.Duration
	RatePerSec     int
	// Template uses {title} and {id} placeholders.
	Template string
}

// Delivery is the outcome for one event.
type Delivery struct {
	ExternalID string
	ChatID     int64
	MessageID  int
	Err        error
}

func (d Delivery) OK() bool { return d.Err == nil }

type HistoryItem struct {
	At         time.Time
	ExternalID string
	OK         bool
}
