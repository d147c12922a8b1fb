package model

import (
	"crypto/sha256"
	"encoding/hex"
)

type (
	// CipherMode selects the symmetric scheme for one message. The set is
	// closed; the sender's choice travels on the envelope and the receiver
	// must use the same mode.
	CipherMode string

	// DeliveryStatus is the per-message delivery lattice. Transitions are
	// monotonic: sent -> delivered -> read.
	DeliveryStatus uint8

	// Envelope is the encrypted record persisted in the content store.
	// KEMCiphertext is only set on the first message of a session so the
	// receiver can derive the same session key.
	Envelope struct {
		From          string     `json:"from" validate:"required"`
		To            string     `json:"to" validate:"required"`
		Mode          CipherMode `json:"mode" validate:"required"`
		KeyGeneration uint32     `json:"key_generation"`
		KEMCiphertext []byte     `json:"kem_ciphertext,omitempty"`
		Ciphertext    []byte     `json:"ciphertext" validate:"required"`
		Signature     []byte     `json:"signature" validate:"required"`
		Proof         []byte     `json:"proof,omitempty"`
		Timestamp     int64      `json:"timestamp"`
	}

	// Message is the accepted, ledger-visible unit. ID is content-derived
	// from (Ciphertext, Signature) and stable once computed.
	Message struct {
		ID         string         `json:"id"`
		SenderID   string         `json:"sender_id"`
		ReceiverID string         `json:"receiver_id"`
		Mode       CipherMode     `json:"mode"`
		Ciphertext []byte         `json:"ciphertext"`
		Signature  []byte         `json:"signature"`
		Timestamp  int64          `json:"timestamp"`
		Status     DeliveryStatus `json:"status"`

		// Failed marks a send whose store write or announce did not go
		// through. Orthogonal to the delivery lattice.
		Failed bool `json:"failed,omitempty"`

		// Plaintext is populated after a successful decrypt; never persisted.
		Plaintext []byte `json:"-"`
	}
)

const (
	ModeSymmetricFast   CipherMode = "symmetric-fast"
	ModeSymmetricMobile CipherMode = "symmetric-mobile"
	ModeHomomorphic     CipherMode = "homomorphic"
)

const (
	StatusSent DeliveryStatus = iota
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	}
	return "unknown"
}

// MessageID derives the message identifier from ciphertext and signature.
// Recomputing it is idempotent; two messages with the same id are the same
// message.
func MessageID(ciphertext, signature []byte) string {
	h := sha256.New()
	h.Write(ciphertext)
	h.Write(signature)
	return hex.EncodeToString(h.Sum(nil))
}

// FromEnvelope builds the ledger-visible message for an envelope, computing
// its content-derived id.
func FromEnvelope(env *Envelope) *Message {
	return &Message{
		ID:         MessageID(env.Ciphertext, env.Signature),
		SenderID:   env.From,
		ReceiverID: env.To,
		Mode:       env.Mode,
		Ciphertext: env.Ciphertext,
		Signature:  env.Signature,
		Timestamp:  env.Timestamp,
		Status:     StatusSent,
	}
}
