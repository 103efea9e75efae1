// Package pipeline runs one ingestion cycle: fetch the wall, store new
// posts as events, then notify about the events that were stored.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"wrestfed/internal/notifier"
	"wrestfed/internal/storage"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

type Fetcher interface {
	Fetch(ctx context.Context, count int) ([]vk.Post, error)
}

type Ingester interface {
	Ingest(ctx context.Context, posts []vk.Post) ([]storage.Event, error)
}

type Notifier interface {
	Notify(ctx context.Context, events []storage.Event) []notifier.Delivery
}

type Config struct {
	Count int
	// LeaseTTL bounds how long a lease outlives a crashed holder.
	LeaseTTL time.Duration
}

// Result describes one cycle. Err is set when the cycle aborted.
type Result struct {
	ID           string
	Started      time.Time
	Duration     time.Duration
	Fetched      int
	Created      int
	Notified     int
	NotifyFailed int
	Skipped      bool
	Err          error
}

type Pipeline struct {
	cfg      Config
	fetcher  Fetcher
	ingester Ingester
	notifier Notifier
	lease    Lease
	log      logx.Logger

	mu      sync.Mutex
	last    Result
	hasLast bool
}

// New wires the stages. lease may be nil.
func New(cfg Config, f Fetcher, in Ingester, n Notifier, lease Lease, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	return &Pipeline{
		cfg:      cfg,
		fetcher:  f,
		ingester: in,
		notifier: n,
		lease:    lease,
		log:      log.With(logx.String("comp", "pipeline")),
	}
}

// Run executes one cycle. Stages run strictly in order; a failed fetch or
// ingest ends the cycle before notification.
func (p *Pipeline) Run(ctx context.Context) (res Result) {
	res = Result{ID: uuid.NewString(), Started: time.Now()}
	log := p.log.With(logx.String("cycle", res.ID))
	defer func() {
		res.Duration = time.Since(res.Started)
		p.mu.Lock()
		p.last, p.hasLast = res, true
		p.mu.Unlock()
	}()

	if p.lease != nil {
		release, err := p.lease.Acquire(ctx, p.cfg.LeaseTTL)
		if errors.Is(err, ErrLeaseHeld) {
			log.Info("cycle skipped; lease held elsewhere")
			res.Skipped = true
			return res
		}
		if err != nil {
			log.Error("lease acquire failed", logx.Err(err))
			res.Err = err
			return res
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(rctx); err != nil {
				log.Warn("lease release failed", logx.Err(err))
			}
		}()
	}

	posts, err := p.fetcher.Fetch(ctx, p.cfg.Count)
	if err != nil {
		log.Error("fetch failed; cycle aborted", logx.Err(err))
		res.Err = err
		return res
	}
	res.Fetched = len(posts)

	created, err := p.ingester.Ingest(ctx, posts)
	if err != nil {
		log.Error("ingest failed; cycle aborted", logx.Err(err))
		res.Err = err
		return res
	}
	res.Created = len(created)
	if len(created) == 0 {
		log.Info("cycle done; nothing new", logx.Int("fetched", res.Fetched))
		return res
	}

	for _, d := range p.notifier.Notify(ctx, created) {
		if d.OK() {
			res.Notified++
		} else {
			res.NotifyFailed++
		}
	}
	log.Info("cycle done",
		logx.Int("fetched", res.Fetched),
		logx.Int("created", res.Created),
		logx.Int("notified", res.Notified),
		logx.Int("notify_failed", res.NotifyFailed),
	)
	return res
}

// Last returns the most recent cycle result.
func (p *Pipeline) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}
