package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qs_chat/internal/utils/backoff"
)

func TestPutIsIdempotent(t *testing.T) {
	s := NewMemoryStore()

	id1, err := s.Put(context.Background(), []byte("payload"))
	require.NoError(t, err)
	id2, err := s.Put(context.Background(), []byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Len(), "second put must not mutate storage")
}

func TestIDDerivedFromContentOnly(t *testing.T) {
	assert.Equal(t, ID([]byte("a")), ID([]byte("a")))
	assert.NotEqual(t, ID([]byte("a")), ID([]byte("b")))
}

func TestGetUnknownIDNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsStoredBytes(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.Put(context.Background(), []byte("payload"))
	require.NoError(t, err)

	data, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

// lateStore misses the first n reads, simulating a peer that has not
// finished replicating.
type lateStore struct {
	mu     sync.Mutex
	misses int
	inner  *MemoryStore
}

func (s *lateStore) Put(ctx context.Context, data []byte) (string, error) {
	return s.inner.Put(ctx, data)
}

func (s *lateStore) Get(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	s.mu.Unlock()
	return s.inner.Get(ctx, id)
}

func fastRetry(maxRetries int) *backoff.Config {
	return &backoff.Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestFetcherRetriesUntilReplicated(t *testing.T) {
	s := &lateStore{misses: 2, inner: NewMemoryStore()}
	id, err := s.Put(context.Background(), []byte("payload"))
	require.NoError(t, err)

	f := NewFetcher(s, fastRetry(5))
	data, err := f.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestFetcherBoundedRetries(t *testing.T) {
	s := &lateStore{misses: 100, inner: NewMemoryStore()}
	f := NewFetcher(s, fastRetry(3))

	_, err := f.Get(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 97, s.misses, "expected exactly 3 attempts")
}

func TestFetcherHonorsContextCancel(t *testing.T) {
	s := &lateStore{misses: 100, inner: NewMemoryStore()}
	f := NewFetcher(s, &backoff.Config{
		MaxRetries: 10,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
		Multiplier: 1.0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.Get(ctx, "deadbeef")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcherAbortsOnOtherErrors(t *testing.T) {
	boom := errors.New("backing store down")
	f := NewFetcher(&failingStore{err: boom}, fastRetry(5))

	_, err := f.Get(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, boom)
}

type failingStore struct {
	err error
}

func (s *failingStore) Put(context.Context, []byte) (string, error) {
	return "", s.err
}

func (s *failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, s.err
}
