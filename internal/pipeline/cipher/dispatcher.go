package cipher

import (
	"errors"
	"fmt"

	"qs_chat/internal/cryptographic/encryption"
	"qs_chat/internal/model"
)

// ErrUnsupportedMode is returned for any mode outside the registered set.
// There is never a silent substitution; an unknown mode is a hard error.
var ErrUnsupportedMode = errors.New("unsupported cipher mode")

type (
	// Cipher is one concrete symmetric scheme. Implementations must not
	// hold state between calls.
	Cipher interface {
		Encrypt(key, plaintext, aad []byte) ([]byte, error)
		Decrypt(key, ciphertext, aad []byte) ([]byte, error)
	}

	// Dispatcher maps each cipher mode to exactly one implementation. The
	// sender's chosen mode travels on the envelope; the receiver dispatches
	// on the same mode, no negotiation.
	Dispatcher struct {
		ciphers map[model.CipherMode]Cipher
	}
)

// NewDispatcher registers the closed set of modes.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		ciphers: make(map[model.CipherMode]Cipher),
	}
	d.Register(model.ModeSymmetricFast, gcmCipher{})
	d.Register(model.ModeSymmetricMobile, xchachaCipher{})
	d.Register(model.ModeHomomorphic, homomorphicCipher{})
	return d
}

func (d *Dispatcher) Register(mode model.CipherMode, c Cipher) {
	d.ciphers[mode] = c
}

func (d *Dispatcher) Encrypt(mode model.CipherMode, key, plaintext, aad []byte) ([]byte, error) {
	c, ok := d.ciphers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	return c.Encrypt(key, plaintext, aad)
}

func (d *Dispatcher) Decrypt(mode model.CipherMode, key, ciphertext, aad []byte) ([]byte, error) {
	c, ok := d.ciphers[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	return c.Decrypt(key, ciphertext, aad)
}

// Opaque reports whether decrypting under mode yields an opaque handle
// rather than plaintext. True only for the homomorphic mode, whose payloads
// stay encrypted for remote computation and are never rendered locally.
func (d *Dispatcher) Opaque(mode model.CipherMode) bool {
	return mode == model.ModeHomomorphic
}

type gcmCipher struct{}

func (gcmCipher) Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	return encryption.AEADEncrypt(key, plaintext, aad)
}

func (gcmCipher) Decrypt(key, ciphertext, aad []byte) ([]byte, error) {
	return encryption.AEADDecrypt(key, ciphertext, aad)
}

type xchachaCipher struct{}

func (xchachaCipher) Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	return encryption.XChaChaEncrypt(key, plaintext, aad)
}

func (xchachaCipher) Decrypt(key, ciphertext, aad []byte) ([]byte, error) {
	return encryption.XChaChaDecrypt(key, ciphertext, aad)
}

// homomorphicCipher seals payloads destined for remote computation. Decrypt
// returns the ciphertext unchanged as an opaque handle; local plaintext
// rendering is unavailable for this mode.
type homomorphicCipher struct{}

func (homomorphicCipher) Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	return encryption.AEADEncrypt(key, plaintext, aad)
}

func (homomorphicCipher) Decrypt(_, ciphertext, _ []byte) ([]byte, error) {
	handle := make([]byte, len(ciphertext))
	copy(handle, ciphertext)
	return handle, nil
}
