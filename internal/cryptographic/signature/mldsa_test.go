package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := NewMLDSAKeyPair()
	require.NoError(t, err)

	msg := []byte("ciphertext bytes")
	sig, err := MLDSASign(priv, msg)
	require.NoError(t, err)

	assert.True(t, MLDSAVerify(pub, msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	pub, priv, err := NewMLDSAKeyPair()
	require.NoError(t, err)

	sig, err := MLDSASign(priv, []byte("ciphertext bytes"))
	require.NoError(t, err)

	assert.False(t, MLDSAVerify(pub, []byte("ciphertext bytez"), sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := NewMLDSAKeyPair()
	require.NoError(t, err)
	otherPub, _, err := NewMLDSAKeyPair()
	require.NoError(t, err)

	msg := []byte("ciphertext bytes")
	sig, err := MLDSASign(priv, msg)
	require.NoError(t, err)

	assert.False(t, MLDSAVerify(otherPub, msg, sig))
}

func TestVerifyMalformedKeyIsFalseNotPanic(t *testing.T) {
	assert.False(t, MLDSAVerify([]byte("junk"), []byte("msg"), []byte("sig")))
}
