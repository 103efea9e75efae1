package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "wrestfed/pkg/logx"
)

var (
	ErrNameRequired    = errors.New("schedule name required")
	ErrUnknownSchedule = errors.New("unknown schedule")
	ErrOverlapSkip     = errors.New("run skipped: previous run still in flight")
	ErrStopped         = errors.New("scheduler stopped")
)

type Config struct {
	Enabled  bool
	Location *time.Location
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	spread  time.Duration

	running atomic.Bool
	stats   *runStats
}

type runStats struct {
	mu      sync.Mutex
	runs    uint64
	skipped uint64
	failed  uint64
	lastAt  time.Time
	lastDur time.Duration
	lastErr string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	parser cron.Parser
	c      *cron.Cron
	defs   []*scheduleDef

	// base is cancelled by Stop so in-flight runs wind down.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	stopping   bool
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Skipped uint64
	Failed  uint64
	LastAt  time.Time
	LastDur time.Duration
	LastErr string
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
