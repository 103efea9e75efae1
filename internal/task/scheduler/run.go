package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "wrestfed/pkg/logx"
)

// track registers a run with the stop wait group. It fails once Stop began
// so Add never races with Wait.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// execute runs d once. trigger is "cron" or "manual" for logging.
func (s *Service) execute(ctx context.Context, d *scheduleDef, trigger string) (err error) {
	if !s.track() {
		return ErrStopped
	}
	defer s.wg.Done()
	if !d.running.CompareAndSwap(false, true) {
		d.stats.mu.Lock()
		d.stats.skipped++
		d.stats.mu.Unlock()
		s.log.Warn("run skipped; previous run in flight", logx.String("name", d.name), logx.String("trigger", trigger))
		return ErrOverlapSkip
	}
	defer d.running.Store(false)

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked", logx.String("name", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
		dur := time.Since(start)

		d.stats.mu.Lock()
		d.stats.runs++
		d.stats.lastAt = start
		d.stats.lastDur = dur
		d.stats.lastErr = ""
		if err != nil {
			d.stats.failed++
			d.stats.lastErr = err.Error()
		}
		d.stats.mu.Unlock()

		if err != nil {
			s.log.Warn("job failed", logx.String("name", d.name), logx.String("trigger", trigger), logx.Duration("dur", dur), logx.Err(err))
			return
		}
		s.log.Debug("job completed", logx.String("name", d.name), logx.String("trigger", trigger), logx.Duration("dur", dur))
	}()

	s.log.Debug("job started", logx.String("name", d.name), logx.String("trigger", trigger))
	return d.job(runCtx)
}
