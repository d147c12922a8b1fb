package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config describes an exponential backoff schedule with jitter. It is shared
// by the connection manager's reconnect loop and the content fetcher's
// bounded-retry reads.
type Config struct {
	// MaxRetries is the maximum number of attempts; <= 0 means unbounded.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Multiplier is the growth factor per attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to each delay
	// to avoid synchronized retry storms.
	Jitter float64
}

// DefaultConfig matches the reconnect policy: 500ms doubling up to 30s with
// 20% jitter, retrying indefinitely.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 0,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Exhausted reports whether attempt (0-based) is past the retry budget.
func (c *Config) Exhausted(attempt int) bool {
	return c.MaxRetries > 0 && attempt >= c.MaxRetries
}

// Delay computes the backoff delay for the given 0-based attempt.
func (c *Config) Delay(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter > 0 {
		jitterAmount := delay * c.Jitter
		delay = delay - jitterAmount + (rand.Float64() * 2 * jitterAmount)
	}

	return time.Duration(delay)
}

// Wait sleeps for the attempt's delay or returns early when ctx is done.
func (c *Config) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
