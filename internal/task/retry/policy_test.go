package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestExponential(t *testing.T) {
	b := Exponential(time.Second, 10*time.Second)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := b(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
}

func TestDo(t *testing.T) {
	appErr := errors.New("application error")
	cases := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
		exhausted bool
	}{
		{"success first", []error{nil}, 1, nil, false},
		{"transient then ok", []error{timeoutErr{}, nil}, 2, nil, false},
		{"transient exhausted", []error{timeoutErr{}, timeoutErr{}, timeoutErr{}, nil}, 3, timeoutErr{}, true},
		{"not retryable", []error{appErr, nil}, 1, appErr, false},
		{"no-retry marker", []error{NoRetry(timeoutErr{}), nil}, 1, timeoutErr{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var slept []time.Duration
			p := Policy{
				MaxAttempts: 3,
				Backoff:     Exponential(time.Second, 10*time.Second),
				Retryable:   Transport,
				Sleep: func(_ context.Context, d time.Duration) error {
					slept = append(slept, d)
					return nil
				},
			}
			calls := 0
			err := p.Do(context.Background(), "test", func(_ context.Context, attempt int) error {
				calls++
				if attempt != calls {
					t.Fatalf("attempt = %d, calls = %d", attempt, calls)
				}
				return tc.errs[calls-1]
			})
			if calls != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tc.wantCalls)
			}
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if errors.Is(err, ErrExhausted) != tc.exhausted {
				t.Fatalf("exhausted = %v, want %v", errors.Is(err, ErrExhausted), tc.exhausted)
			}
			if len(slept) != calls-1 && tc.wantErr == nil {
				t.Fatalf("slept %d times for %d calls", len(slept), calls)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, Backoff: Exponential(time.Hour, time.Hour), Retryable: Transport}
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, "test", func(context.Context, int) error {
		calls++
		return timeoutErr{}
	})
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	if !errors.Is(err, timeoutErr{}) {
		t.Fatalf("err = %v", err)
	}
}

func TestTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("plain"), false},
		{"timeout", timeoutErr{}, true},
		{"url timeout", &url.Error{Op: "Get", URL: "http://vk", Err: timeoutErr{}}, true},
		{"url canceled", &url.Error{Op: "Get", URL: "http://vk", Err: context.Canceled}, false},
		{"dial refused", &url.Error{Op: "Get", URL: "http://vk", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}, true},
		{"dns", &url.Error{Op: "Get", URL: "http://vk", Err: &net.DNSError{Err: "no such host", Name: "vk"}}, true},
		{"eof", &url.Error{Op: "Get", URL: "http://vk", Err: io.EOF}, true},
		{"bad scheme", &url.Error{Op: "Get", URL: "ftp://vk", Err: errors.New(`unsupported protocol scheme "ftp"`)}, false},
	}
	for _, tt := range tests {
		if got := Transport(tt.err); got != tt.want {
			t.Fatalf("%s: Transport(%v) = %v, want %v", tt.name, tt.err, got, tt.want)
		}
	}
}
