// Package retry runs an operation under an explicit retry policy:
// a maximum number of attempts, a backoff function and a predicate
// deciding which errors are worth another attempt.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"time"

	logx "wrestfed/pkg/logx"
)

type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean 1.
	MaxAttempts int
	// Backoff returns the delay after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable reports whether err warrants another attempt. Nil retries
	// everything not marked with NoRetry.
	Retryable func(err error) bool

	// Sleep waits between attempts; nil uses a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   logx.Logger
}

// Exponential returns base, 2*base, 4*base ... capped at maxDelay.
func Exponential(base, maxDelay time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxDelay {
				return maxDelay
			}
		}
		return min(d, maxDelay)
	}
}

// Transport treats network failures and timeouts as transient. Context
// cancellation of the caller is never retried, and neither are client
// errors that carry no network failure, such as an unsupported URL scheme.
func Transport(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// *url.Error implements net.Error for every client failure; judge the
	// cause instead.
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do calls fn until it succeeds, returns a permanent error, or the attempt
// budget runs out. fn receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if IsNoRetry(err) {
			var nr noRetryError
			errors.As(err, &nr)
			return nr.err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt >= maxAttempts {
			return &exhaustedError{attempts: attempt, err: err}
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		p.Log.Warn("retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", maxAttempts),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
