package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got err=%v calls=%d", err, calls)
	}
}

func TestRetryHonoursPredicate(t *testing.T) {
	fatal := errors.New("fatal")
	p := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond, Retryable: func(err error) bool {
		return !errors.Is(err, fatal)
	}}
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected one call, got %d (%v)", calls, err)
	}
}

func TestRetryExhausts(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond)
	var attempts []int
	err := p.Do(context.Background(), func(a int) error {
		attempts = append(attempts, a)
		return errors.New("down")
	})
	if err == nil || len(attempts) != 3 || attempts[2] != 2 {
		t.Fatalf("expected three attempts, got %v (%v)", attempts, err)
	}
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxRetries: 5, Backoff: time.Hour}
	calls := 0
	err := p.Do(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected a single call before cancellation, got %d", calls)
	}
}

func TestCircuitBreakerOpensOnRateLimit(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(errors.New("unrelated"))
	cb.OnError(RateLimitError{Transport: "httpapi"})
	if !cb.Allow() {
		t.Fatalf("breaker opened too early")
	}
	cb.OnError(RateLimitError{Transport: "httpapi"})
	if cb.Allow() {
		t.Fatalf("expected breaker to be open")
	}
	now = now.Add(2 * time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected breaker to close after cooldown")
	}
	cb.OnSuccess()
	cb.OnError(RateLimitError{})
	if !cb.Allow() {
		t.Fatalf("success should reset the failure count")
	}
}

func TestCircuitBreakerHalfOpenTrial(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.OnError(RateLimitError{})
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected trial call to be admitted")
	}
	if cb.Allow() {
		t.Fatalf("only one trial call may run in half-open")
	}
	cb.OnError(RateLimitError{})
	if cb.State() != BreakerOpen || cb.Allow() {
		t.Fatalf("failed trial call should reopen the breaker")
	}
	now = now.Add(time.Minute)
	if !cb.Allow() {
		t.Fatalf("expected second trial call")
	}
	cb.OnSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after successful trial call, got %s", cb.State())
	}
}

func TestNewRetryPolicyZeroDisablesRetries(t *testing.T) {
	if p := NewRetryPolicy(0, 0); p.MaxRetries != 0 || p.Backoff <= 0 {
		t.Fatalf("expected no retries with default backoff, got %+v", p)
	}
	if p := NewRetryPolicy(-1, time.Millisecond); p.MaxRetries != 2 {
		t.Fatalf("expected default retries for negative input, got %d", p.MaxRetries)
	}
	calls := 0
	_ = NewRetryPolicy(0, time.Millisecond).Do(context.Background(), func(int) error {
		calls++
		return errors.New("down")
	})
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
