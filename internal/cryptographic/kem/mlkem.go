package kem

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
)

// ErrEntropy is returned when the entropy source fails during key generation
// or encapsulation.
var ErrEntropy = errors.New("entropy source failure")

// Provider produces ML-KEM-768 key material and performs encapsulation. It
// satisfies the key-material interface consumed by the session manager.
type Provider struct {
	scheme kem.Scheme
}

func NewProvider() *Provider {
	return &Provider{
		scheme: mlkem768.Scheme(),
	}
}

// GenerateKEMKeyPair returns a new ML-KEM-768 key pair in marshalled form.
func (p *Provider) GenerateKEMKeyPair() ([]byte, []byte, error) {
	pub, priv, err := p.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}

	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal secret key: %w", err)
	}
	return pubBytes, privBytes, nil
}

// Encapsulate derives a fresh shared secret against the peer's public key,
// returning the KEM ciphertext to transmit and the local copy of the secret.
func (p *Provider) Encapsulate(peerPub []byte) ([]byte, []byte, error) {
	pub, err := p.scheme.UnmarshalBinaryPublicKey(peerPub)
	if err != nil {
		return nil, nil, fmt.Errorf("unmarshal peer public key: %w", err)
	}

	ct, shared, err := p.scheme.Encapsulate(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return ct, shared, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext using the
// local secret key.
func (p *Provider) Decapsulate(privBytes, kemCT []byte) ([]byte, error) {
	priv, err := p.scheme.UnmarshalBinaryPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("unmarshal secret key: %w", err)
	}

	shared, err := p.scheme.Decapsulate(priv, kemCT)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}
	return shared, nil
}
