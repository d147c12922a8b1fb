package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qs_chat/internal/utils/backoff"
)

// Fetcher reads announced blobs with bounded retries. An announcing peer may
// not have finished replicating, so a miss is retried with backoff instead
// of failing immediately or blocking forever.
type Fetcher struct {
	store Store
	cfg   *backoff.Config
}

// DefaultFetchConfig bounds an announced-blob read to 5 attempts over a few
// seconds.
func DefaultFetchConfig() *backoff.Config {
	return &backoff.Config{
		MaxRetries: 5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

func NewFetcher(store Store, cfg *backoff.Config) *Fetcher {
	if cfg == nil {
		cfg = DefaultFetchConfig()
	}
	return &Fetcher{
		store: store,
		cfg:   cfg,
	}
}

// Get retries ErrNotFound until the retry budget is spent; any other error
// aborts immediately.
func (f *Fetcher) Get(ctx context.Context, id string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := f.store.Get(ctx, id)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		lastErr = err

		if f.cfg.Exhausted(attempt + 1) {
			break
		}
		if err := f.cfg.Wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetch %s: %w", id, lastErr)
}
