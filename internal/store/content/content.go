package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrNotFound is returned for ids the store does not hold. The store cannot
// tell "not yet replicated" from "never existed"; retry policy lives with
// the caller.
var ErrNotFound = errors.New("content not found")

type (
	// Store is a content-addressed, append-only blob store. Put is
	// idempotent: identical bytes always map to the same id.
	Store interface {
		Put(ctx context.Context, data []byte) (string, error)
		Get(ctx context.Context, id string) ([]byte, error)
	}

	// MemoryStore keeps blobs in a map. Used by the client for local echo
	// and by tests.
	MemoryStore struct {
		mu    sync.RWMutex
		blobs map[string][]byte
	}
)

// ID derives the content address of a blob: hex SHA-256 of its bytes.
func ID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	id := ID(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; ok {
		return id, nil
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	s.blobs[id] = cpy
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	return cpy, nil
}

// Len reports the number of stored blobs; mutation checks in tests rely on
// it.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Blobs returns a copy of the stored blobs keyed by id.
func (s *MemoryStore) Blobs() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.blobs))
	for id, data := range s.blobs {
		cpy := make([]byte, len(data))
		copy(cpy, data)
		out[id] = cpy
	}
	return out
}
