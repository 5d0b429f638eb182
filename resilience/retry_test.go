package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errRefused = errors.New("connection refused")
	errExited  = errors.New("process exited")
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RetryConfig
		failures  int // calls that fail before one succeeds; -1 never succeeds
		retryIf   func(error) bool
		wantErr   error
		wantCalls int
	}{
		{name: "first call succeeds", cfg: DefaultRetryConfig(), wantCalls: 1},
		{name: "succeeds on third call", cfg: fastConfig(3), failures: 2, wantCalls: 3},
		{name: "attempts exhausted", cfg: fastConfig(3), failures: -1, wantErr: errRefused, wantCalls: 3},
		{name: "zero attempts means three", cfg: RetryConfig{InitialBackoff: time.Millisecond}, failures: -1, wantErr: errRefused, wantCalls: 3},
		{
			name:      "RetryIf rejects",
			cfg:       fastConfig(5),
			failures:  -1,
			retryIf:   func(err error) bool { return !errors.Is(err, errRefused) },
			wantErr:   errRefused,
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			if tc.retryIf != nil {
				cfg.RetryIf = tc.retryIf
			}
			calls := 0
			got, err := Retry(context.Background(), cfg, func() (int, error) {
				calls++
				if tc.failures < 0 || calls <= tc.failures {
					return 0, errRefused
				}
				return 8080, nil
			})
			if !errors.Is(err, tc.wantErr) || (tc.wantErr == nil && err != nil) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if err == nil && got != 8080 {
				t.Fatalf("expected 8080, got %d", got)
			}
			if calls != tc.wantCalls {
				t.Fatalf("expected %d calls, got %d", tc.wantCalls, calls)
			}
		})
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var attempts []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		if !errors.Is(err, errRefused) || backoff <= 0 {
			t.Errorf("unexpected OnRetry(%d, %v, %v)", attempt, err, backoff)
		}
		attempts = append(attempts, attempt)
	}

	_ = RetryFunc(context.Background(), cfg, func() error { return errRefused })
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("expected OnRetry before attempts 2 and 3, got %v", attempts)
	}
}

func TestRetry_CancelledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryFunc(ctx, fastConfig(3), func() error { calls++; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls, got %d", calls)
	}
}

func TestRetry_PollsUntilDeadline(t *testing.T) {
	cfg := fastConfig(Unlimited)
	cfg.Jitter = 0.5
	cfg.RetryIf = func(error) bool { return true }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	calls := 0
	err := RetryFunc(ctx, cfg, func() error { calls++; return errRefused })
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, errRefused) {
		t.Fatalf("expected deadline wrapping the last probe error, got %v", err)
	}
	if calls <= 3 {
		t.Fatalf("expected polling past the default attempt count, got %d calls", calls)
	}
}

func TestRetry_Permanent(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), fastConfig(Unlimited), func() error {
		calls++
		if calls == 2 {
			return Permanent(errExited)
		}
		return errRefused
	})
	if err != errExited {
		t.Fatalf("expected the unwrapped permanent error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestDefaultRetryIf(t *testing.T) {
	if DefaultRetryIf(context.Canceled) || DefaultRetryIf(context.DeadlineExceeded) {
		t.Error("context errors should not be retried")
	}
	if !DefaultRetryIf(errRefused) {
		t.Error("other errors should be retried")
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{5, 800 * time.Millisecond},
		{6, time.Second},
		{2000, time.Second},
	}
	for _, tt := range tests {
		if got := cfg.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	cfg.Jitter = 0.5
	cfg = cfg.normalized()
	for _, attempt := range []int{1, 10, 2000} {
		if got := cfg.jittered(attempt); got <= 0 || got > time.Second {
			t.Errorf("jittered(%d) = %v outside (0, 1s]", attempt, got)
		}
	}
}
