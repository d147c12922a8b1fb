package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	// PeerKeys is the public half of a peer's identity, served by the relay.
	PeerKeys struct {
		KEMPub []byte `json:"kem_pub"`
		SigPub []byte `json:"sig_pub"`
	}

	// Identity is the full user record persisted in mongo, private halves
	// included. The relay serves peers only the PeerKeys projection.
	Identity struct {
		ID      primitive.ObjectID `bson:"_id,omitempty"`
		Name    string             `bson:"name"`
		KEMPub  []byte             `bson:"kem_pub"`
		KEMPriv []byte             `bson:"kem_priv,omitempty"`
		SigPub  []byte             `bson:"sig_pub"`
		SigPriv []byte             `bson:"sig_priv,omitempty"`
	}

	// SessionKey is one generation of symmetric key material for a peer
	// pair. Rotation creates a new generation; prior generations stay
	// readable until drained.
	SessionKey struct {
		Key        []byte
		Generation uint32
		Family     CipherMode
		CreatedAt  time.Time

		// KEMCiphertext is carried on envelopes encrypted under this
		// generation so the peer can decapsulate the same key. Only set on
		// locally derived keys; adoption is idempotent on the far side.
		KEMCiphertext []byte
	}
)

// PublicKeys strips an identity down to the halves the relay may serve.
func (id *Identity) PublicKeys() *PeerKeys {
	return &PeerKeys{
		KEMPub: id.KEMPub,
		SigPub: id.SigPub,
	}
}
