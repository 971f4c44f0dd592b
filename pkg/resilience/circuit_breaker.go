package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// RateLimitError is a throttling answer from the bot runtime.
type RateLimitError struct {
	Transport  string
	Message    string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit"
	}
	return e.Message
}

func IsRateLimit(err error) bool {
	var rl RateLimitError
	return errors.As(err, &rl)
}

// BreakerState is the position of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops sending turns after threshold consecutive rate limit
// failures. Once cooldown has passed a single probe is let through; its
// outcome closes or reopens the breaker. Errors other than rate limits do
// not count.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
	if cb.threshold <= 0 {
		cb.threshold = 3
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	return cb
}

// State reports the current position, moving open to half-open when the
// cooldown has elapsed.
func (c *CircuitBreaker) State() BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	return c.state
}

func (c *CircuitBreaker) advance() {
	if c.state == BreakerOpen && c.now().Sub(c.openedAt) >= c.cooldown {
		c.state = BreakerHalfOpen
		c.probing = false
	}
}

// Allow reports whether a call may proceed. In half-open only the first
// caller is admitted until it reports back.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
	switch c.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
	}
	return true
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.state, c.failures, c.probing = BreakerClosed, 0, false
	c.mu.Unlock()
}

func (c *CircuitBreaker) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !IsRateLimit(err) {
		if c.state == BreakerHalfOpen {
			// the runtime answered, just not successfully
			c.state, c.failures, c.probing = BreakerClosed, 0, false
		}
		return
	}
	c.failures++
	if c.state == BreakerHalfOpen || c.failures >= c.threshold {
		c.state = BreakerOpen
		c.openedAt = c.now()
		c.probing = false
	}
}
