package session

import (
	"qs_chat/internal/cryptographic/kdf"
)

// deriveSessionKey turns a KEM shared secret into 32 bytes of symmetric key
// material. The info string is built from the sorted pair of user ids so
// both ends of a conversation derive the same key from the same secret.
func deriveSessionKey(secret []byte, a, b string) ([]byte, error) {
	if b < a {
		a, b = b, a
	}
	info := []byte("SessionKey|" + a + "|" + b)

	key := make([]byte, 32)
	_, err := kdf.HKDF(secret, nil, info, key)
	if err != nil {
		return nil, err
	}
	return key, nil
}
