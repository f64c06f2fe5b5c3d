package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/nacl/secretbox"

	"kakioki/internal/domain"
)

const (
	// NonceBytes is the XSalsa20-Poly1305 nonce length.
	NonceBytes = 24
	// KeyBytes is the secretbox key length.
	KeyBytes = 32
)

// NewNonce returns 24 random bytes.
func NewNonce() (nonce [NonceBytes]byte, err error) {
	_, err = rand.Read(nonce[:])
	return
}

// Seal encrypts plaintext with XSalsa20-Poly1305 (crypto_secretbox_easy).
func Seal(key *[KeyBytes]byte, nonce *[NonceBytes]byte, plaintext []byte) []byte {
	return secretbox.Seal(nil, plaintext, nonce, key)
}

// Open authenticates and decrypts ciphertext (crypto_secretbox_open_easy).
func Open(key *[KeyBytes]byte, nonce *[NonceBytes]byte, ciphertext []byte) ([]byte, error) {
	pt, ok := secretbox.Open(nil, ciphertext, nonce, key)
	if !ok {
		return nil, domain.ErrDecryptionFailed
	}
	return pt, nil
}
