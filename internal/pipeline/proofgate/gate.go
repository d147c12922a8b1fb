package proofgate

import (
	"crypto/hmac"
	"crypto/sha256"
)

// proofDomain separates proof commitments from any other SHA-256 use in the
// pipeline.
var proofDomain = []byte("qs_chat/proof/v1")

// Gate validates the proof attached to an inbound ciphertext before the
// signature check runs. It is stateless and pure: the same inputs always
// produce the same answer.
type Gate struct {
	required bool
}

// New builds a gate. When required is true, a missing proof is itself a
// rejection, never a skipped check.
func New(required bool) *Gate {
	return &Gate{required: required}
}

func (g *Gate) Required() bool {
	return g.required
}

// Validate reports whether the proof binds to the ciphertext. A nil proof
// passes only when the gate does not require one.
func (g *Gate) Validate(ciphertext, proof []byte) bool {
	if len(proof) == 0 {
		return !g.required
	}
	return hmac.Equal(proof, commit(ciphertext))
}

// Attach produces the proof commitment for an outbound ciphertext.
func Attach(ciphertext []byte) []byte {
	return commit(ciphertext)
}

func commit(ciphertext []byte) []byte {
	h := sha256.New()
	h.Write(proofDomain)
	h.Write(ciphertext)
	return h.Sum(nil)
}
