package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qs_chat/internal/model"
)

var (
	// ErrKeyUnavailable wraps key-material failures. Callers surface it as a
	// blocking error; there is no silent fallback to a weaker mode.
	ErrKeyUnavailable = errors.New("session key unavailable")

	// ErrNoSuchGeneration is returned when a decrypt references a key
	// generation that was never created or has been drained.
	ErrNoSuchGeneration = errors.New("no such key generation")
)

type (
	// KeyMaterial is the capability the manager consumes for all key
	// generation and encapsulation. Implemented by cryptographic/kem.
	KeyMaterial interface {
		GenerateKEMKeyPair() (pub, priv []byte, err error)
		Encapsulate(peerPub []byte) (kemCT, shared []byte, err error)
		Decapsulate(priv, kemCT []byte) (shared []byte, err error)
	}

	// PeerKeyLookup resolves a peer's published public keys, typically via
	// the relay's /keys endpoint.
	PeerKeyLookup func(ctx context.Context, peerID string) (*model.PeerKeys, error)

	// keyRing holds every live generation for one peer pair. Old
	// generations stay readable after rotation until drained.
	keyRing struct {
		active uint32
		gens   map[uint32]*model.SessionKey
	}

	// Manager owns one symmetric session key per peer for a single local
	// user. All state is behind a single RWMutex; key material calls run
	// outside the lock.
	Manager struct {
		localID  string
		kemPriv  []byte
		material KeyMaterial
		lookup   PeerKeyLookup

		mu    sync.RWMutex
		rings map[string]*keyRing
	}
)

// NewManager builds a session key manager for the local user. kemPriv is the
// user's ML-KEM secret key, used to adopt keys encapsulated by peers.
func NewManager(localID string, kemPriv []byte, material KeyMaterial, lookup PeerKeyLookup) *Manager {
	return &Manager{
		localID:  localID,
		kemPriv:  kemPriv,
		material: material,
		lookup:   lookup,
		rings:    make(map[string]*keyRing),
	}
}

// GetOrCreate returns the active session key for the peer, deriving a fresh
// one from new KEM material on first use. The returned key carries the KEM
// ciphertext to piggyback on the next envelope until the peer adopts it.
func (m *Manager) GetOrCreate(ctx context.Context, peerID string) (*model.SessionKey, error) {
	m.mu.RLock()
	if ring, ok := m.rings[peerID]; ok {
		key := ring.gens[ring.active]
		m.mu.RUnlock()
		return key, nil
	}
	m.mu.RUnlock()

	key, err := m.derive(ctx, peerID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have created the ring while we were deriving.
	if ring, ok := m.rings[peerID]; ok {
		return ring.gens[ring.active], nil
	}
	key.Generation = 1
	m.rings[peerID] = &keyRing{
		active: 1,
		gens:   map[uint32]*model.SessionKey{1: key},
	}
	return key, nil
}

// Rotate atomically replaces the active key with a new generation. The prior
// generation remains retrievable via ByGeneration until Drain is called, so
// decrypts of in-flight traffic keep working.
func (m *Manager) Rotate(ctx context.Context, peerID string) (*model.SessionKey, error) {
	key, err := m.derive(ctx, peerID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.rings[peerID]
	if !ok {
		key.Generation = 1
		m.rings[peerID] = &keyRing{
			active: 1,
			gens:   map[uint32]*model.SessionKey{1: key},
		}
		return key, nil
	}

	key.Generation = ring.active + 1
	ring.gens[key.Generation] = key
	ring.active = key.Generation
	return key, nil
}

// Adopt installs the session key a peer encapsulated for us, decapsulating
// the KEM ciphertext carried on the first envelope of a session.
func (m *Manager) Adopt(peerID string, generation uint32, kemCT []byte) (*model.SessionKey, error) {
	secret, err := m.material.Decapsulate(m.kemPriv, kemCT)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	raw, err := deriveSessionKey(secret, m.localID, peerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	key := &model.SessionKey{
		Key:        raw,
		Generation: generation,
		CreatedAt:  time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.rings[peerID]
	if !ok {
		ring = &keyRing{gens: make(map[uint32]*model.SessionKey)}
		m.rings[peerID] = ring
	}
	if existing, ok := ring.gens[generation]; ok {
		return existing, nil
	}
	ring.gens[generation] = key
	if generation > ring.active {
		ring.active = generation
	}
	return key, nil
}

// ByGeneration returns the key for a specific generation, active or retired.
func (m *Manager) ByGeneration(peerID string, generation uint32) (*model.SessionKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ring, ok := m.rings[peerID]
	if !ok {
		return nil, ErrNoSuchGeneration
	}
	key, ok := ring.gens[generation]
	if !ok {
		return nil, ErrNoSuchGeneration
	}
	return key, nil
}

// Drain discards a retired generation once the caller has no in-flight
// decrypts referencing it. Draining the active generation is refused.
func (m *Manager) Drain(peerID string, generation uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, ok := m.rings[peerID]
	if !ok {
		return ErrNoSuchGeneration
	}
	if generation == ring.active {
		return fmt.Errorf("cannot drain active generation %d", generation)
	}
	if _, ok := ring.gens[generation]; !ok {
		return ErrNoSuchGeneration
	}
	delete(ring.gens, generation)
	return nil
}

// Teardown forgets all key material for the peer, ending the session.
func (m *Manager) Teardown(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rings, peerID)
}

// derive produces fresh key material for the peer without holding the lock:
// fetch the peer's KEM public key, encapsulate, and stretch the shared
// secret into a session key.
func (m *Manager) derive(ctx context.Context, peerID string) (*model.SessionKey, error) {
	peer, err := m.lookup(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup peer keys: %v", ErrKeyUnavailable, err)
	}

	kemCT, secret, err := m.material.Encapsulate(peer.KEMPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	raw, err := deriveSessionKey(secret, m.localID, peerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	return &model.SessionKey{
		Key:           raw,
		CreatedAt:     time.Now(),
		KEMCiphertext: kemCT,
	}, nil
}
