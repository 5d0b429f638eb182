package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Unlimited as MaxAttempts retries until success, a Permanent error, or the
// end of the context.
const Unlimited = -1

const (
	defaultAttempts = 3
	defaultInitial  = 100 * time.Millisecond
	defaultMax      = 10 * time.Second
	defaultFactor   = 2.0
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as final. Retry stops and returns err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryConfig tunes Retry. Zero fields take the defaults of
// DefaultRetryConfig, except RetryIf which falls back to DefaultRetryIf.
type RetryConfig struct {
	// MaxAttempts counts the first call. Negative means Unlimited.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// Jitter spreads each delay by up to ±Jitter of itself.
	Jitter float64
	// RetryIf decides whether a failed attempt is worth repeating.
	RetryIf func(error) bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryConfig returns three attempts starting at 100ms, doubling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    defaultAttempts,
		InitialBackoff: defaultInitial,
		MaxBackoff:     defaultMax,
		BackoffFactor:  defaultFactor,
		Jitter:         0.1,
		RetryIf:        DefaultRetryIf,
	}
}

// DefaultRetryIf retries anything but context errors.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitial
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMax
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = defaultFactor
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	return c
}

// Backoff returns the delay after the given failed attempt (1-based),
// before jitter: InitialBackoff * BackoffFactor^(attempt-1), capped at
// MaxBackoff.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.normalized()
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffFactor, float64(attempt-1))
	return time.Duration(math.Min(d, float64(c.MaxBackoff)))
}

func (c RetryConfig) jittered(attempt int) time.Duration {
	d := float64(c.Backoff(attempt))
	if c.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * c.Jitter
	}
	switch {
	case d > float64(c.MaxBackoff):
		return c.MaxBackoff
	case d <= 0:
		return c.InitialBackoff
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, fails with an error RetryIf rejects,
// runs out of attempts or ctx ends. A context ending after a failure yields
// an error wrapping both the context error and the last failure.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	cfg = cfg.normalized()

	var last error
	for attempt := 1; cfg.MaxAttempts < 0 || attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, interrupted(ctx, last)
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		last = err
		if !cfg.RetryIf(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		wait := cfg.jittered(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, interrupted(ctx, last)
		case <-timer.C:
		}
	}
	return zero, last
}

// RetryFunc is Retry for functions without a result.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func interrupted(ctx context.Context, last error) error {
	if last == nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: last error: %w", ctx.Err(), last)
}
