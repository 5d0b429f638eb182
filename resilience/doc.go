// Package resilience provides retry with exponential backoff and jitter.
//
// Retry drives both bounded retries (MaxAttempts > 0) and open-ended polling
// that only the context can end (MaxAttempts < 0):
//
//	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
//	    MaxAttempts:    resilience.Unlimited,
//	    InitialBackoff: 25 * time.Millisecond,
//	    MaxBackoff:     500 * time.Millisecond,
//	    Jitter:         0.2,
//	}, func() error {
//	    if exited() {
//	        return resilience.Permanent(errExited)
//	    }
//	    return probe(ctx)
//	})
package resilience
