package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	cfg := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	var prev time.Duration
	for attempt := 0; attempt < 8; attempt++ {
		d := cfg.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
		prev = d
	}
	assert.Equal(t, cfg.MaxDelay, cfg.Delay(10))
}

func TestJitterStaysNearDelay(t *testing.T) {
	cfg := &Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}

	for i := 0; i < 50; i++ {
		d := cfg.Delay(0)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestExhausted(t *testing.T) {
	bounded := &Config{MaxRetries: 3}
	assert.False(t, bounded.Exhausted(2))
	assert.True(t, bounded.Exhausted(3))

	unbounded := &Config{}
	assert.False(t, unbounded.Exhausted(1000))
}
