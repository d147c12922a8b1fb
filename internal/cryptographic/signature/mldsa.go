package signature

import (
	"crypto/rand"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

const (
	PublicKeySize = 1952
	SignatureSize = 3309
)

func NewMLDSAKeyPair() ([]byte, []byte, error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return pubBytes, privBytes, nil
}

// MLDSASign signs message with an ML-DSA-65 private key. Signing is always
// over ciphertext in this pipeline, never plaintext.
func MLDSASign(privKeyBytes []byte, message []byte) ([]byte, error) {
	var priv mldsa65.PrivateKey
	if err := priv.UnmarshalBinary(privKeyBytes); err != nil {
		return nil, err
	}

	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(&priv, message, nil, false, sig); err != nil {
		return nil, err
	}
	return sig, nil
}

// MLDSAVerify reports whether signature is valid for message. A malformed
// public key verifies as false rather than erroring; the receive path treats
// false as "reject".
func MLDSAVerify(pubKeyBytes []byte, message []byte, signature []byte) bool {
	var pub mldsa65.PublicKey
	if err := pub.UnmarshalBinary(pubKeyBytes); err != nil {
		return false
	}
	return mldsa65.Verify(&pub, message, nil, signature)
}
