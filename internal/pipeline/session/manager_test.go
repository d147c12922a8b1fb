package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qs_chat/internal/model"
)

// fakeMaterial hands out deterministic secrets; Decapsulate inverts
// Encapsulate by treating the KEM ciphertext as the secret itself.
type fakeMaterial struct {
	mu      sync.Mutex
	counter int
	fail    error
}

func (f *fakeMaterial) GenerateKEMKeyPair() ([]byte, []byte, error) {
	if f.fail != nil {
		return nil, nil, f.fail
	}
	return []byte("pub"), []byte("priv"), nil
}

func (f *fakeMaterial) Encapsulate(peerPub []byte) ([]byte, []byte, error) {
	if f.fail != nil {
		return nil, nil, f.fail
	}
	f.mu.Lock()
	f.counter++
	secret := []byte(fmt.Sprintf("secret-%d", f.counter))
	f.mu.Unlock()
	return secret, secret, nil
}

func (f *fakeMaterial) Decapsulate(priv, kemCT []byte) ([]byte, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return kemCT, nil
}

func fakeLookup(ctx context.Context, peerID string) (*model.PeerKeys, error) {
	return &model.PeerKeys{KEMPub: []byte("peer-pub"), SigPub: []byte("peer-sig")}, nil
}

func newTestManager(material KeyMaterial) *Manager {
	return NewManager("alice", []byte("alice-kem-priv"), material, fakeLookup)
}

func TestGetOrCreateCachesActiveKey(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	k1, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, uint32(1), k1.Generation)
	require.Len(t, k1.Key, 32)

	k2, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Same(t, k1, k2)
}

func TestGetOrCreateKeyUnavailable(t *testing.T) {
	m := newTestManager(&fakeMaterial{fail: errors.New("token absent")})

	_, err := m.GetOrCreate(context.Background(), "bob")
	require.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestRotateKeepsOldGenerationReadable(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	old, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)

	fresh, err := m.Rotate(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, uint32(2), fresh.Generation)
	assert.NotEqual(t, old.Key, fresh.Key)

	// In-flight traffic encrypted under the pre-rotation generation must
	// still find its key.
	got, err := m.ByGeneration("bob", old.Generation)
	require.NoError(t, err)
	assert.Equal(t, old.Key, got.Key)

	active, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, fresh.Generation, active.Generation)
}

func TestDrainRetiredGeneration(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	old, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	_, err = m.Rotate(context.Background(), "bob")
	require.NoError(t, err)

	require.NoError(t, m.Drain("bob", old.Generation))
	_, err = m.ByGeneration("bob", old.Generation)
	assert.ErrorIs(t, err, ErrNoSuchGeneration)
}

func TestDrainActiveGenerationRefused(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	key, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Error(t, m.Drain("bob", key.Generation))
}

func TestAdoptIsIdempotent(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	k1, err := m.Adopt("bob", 1, []byte("shared-secret"))
	require.NoError(t, err)
	k2, err := m.Adopt("bob", 1, []byte("shared-secret"))
	require.NoError(t, err)
	assert.Same(t, k1, k2)
}

func TestAdoptAdvancesActiveGeneration(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	_, err := m.Adopt("bob", 1, []byte("one"))
	require.NoError(t, err)
	k2, err := m.Adopt("bob", 2, []byte("two"))
	require.NoError(t, err)

	active, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, k2.Generation, active.Generation)
}

func TestTeardownForgetsPeer(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	key, err := m.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)

	m.Teardown("bob")
	_, err = m.ByGeneration("bob", key.Generation)
	assert.ErrorIs(t, err, ErrNoSuchGeneration)
}

func TestConcurrentGetOrCreateSingleGeneration(t *testing.T) {
	m := newTestManager(&fakeMaterial{})

	const n = 20
	keys := make([]*model.SessionKey, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := m.GetOrCreate(context.Background(), "bob")
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	// Racing readers all observe one committed key, never a partial one.
	for i := 1; i < n; i++ {
		assert.Same(t, keys[0], keys[i])
	}
}

func TestDeriveSessionKeySymmetric(t *testing.T) {
	a, err := deriveSessionKey([]byte("secret"), "alice", "bob")
	require.NoError(t, err)
	b, err := deriveSessionKey([]byte("secret"), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
