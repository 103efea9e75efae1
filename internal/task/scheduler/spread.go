package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// maxStartupSpread caps the random delay added to the first interval run
// so several processes started together do not hit VK at the same instant.
const maxStartupSpread = 30 * time.Second

// delayedFirst behaves like base except that nothing fires before first.
type delayedFirst struct {
	base  cron.Schedule
	first time.Time
}

func (s delayedFirst) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// everyWithSpread returns an interval schedule whose first run is pushed
// back by a random share of min(every, maxStartupSpread).
func everyWithSpread(every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	window := min(every, maxStartupSpread)
	if window <= 0 {
		return base, 0
	}
	jitter := rand.N(window)
	return delayedFirst{base: base, first: now.Add(every + jitter)}, jitter
}
