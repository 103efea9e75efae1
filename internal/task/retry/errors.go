package retry

import (
	"errors"
	"fmt"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry budget exhausted")

// NoRetry marks an error as permanent. Do returns it on the spot
// regardless of the policy's Retryable predicate.
//
// Example:
//
//	return retry.NoRetry(fmt.Errorf("bad group id: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("%d attempts failed: %v", e.attempts, e.err)
}
func (e *exhaustedError) Unwrap() []error { return []error{ErrExhausted, e.err} }
