package proofgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsAttachedProof(t *testing.T) {
	g := New(true)
	ct := []byte("ciphertext")

	assert.True(t, g.Validate(ct, Attach(ct)))
}

func TestValidateRejectsTamperedProof(t *testing.T) {
	g := New(true)
	ct := []byte("ciphertext")

	proof := Attach(ct)
	proof[0] ^= 0xff
	assert.False(t, g.Validate(ct, proof))
}

func TestValidateRejectsProofForOtherCiphertext(t *testing.T) {
	g := New(false)
	assert.False(t, g.Validate([]byte("ciphertext"), Attach([]byte("other"))))
}

func TestMissingProofPolicy(t *testing.T) {
	// Absence is itself a rejection when the gate requires a proof, never a
	// skipped check.
	assert.False(t, New(true).Validate([]byte("ciphertext"), nil))
	assert.True(t, New(false).Validate([]byte("ciphertext"), nil))
}

func TestValidateIsPure(t *testing.T) {
	g := New(true)
	ct := []byte("ciphertext")
	proof := Attach(ct)

	for i := 0; i < 10; i++ {
		assert.True(t, g.Validate(ct, proof))
	}
}
