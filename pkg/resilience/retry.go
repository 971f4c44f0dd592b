package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// MaxBackoff caps the doubled delay; zero keeps the delay constant.
	MaxBackoff time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// NewRetryPolicy fills defaults for a negative maxRetries or a non-positive
// backoff. Zero maxRetries means a single attempt.
func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done.
func (r RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var err error
	delay := r.Backoff
	for i := 0; i <= r.MaxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || (r.Retryable != nil && !r.Retryable(err)) {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		if r.MaxBackoff > 0 {
			delay = min(delay*2, r.MaxBackoff)
		}
	}
	return err
}
