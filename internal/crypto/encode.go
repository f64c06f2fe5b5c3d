package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"kakioki/internal/domain"
)

// ErrBadPublicKey is returned for a public key that is not 32 bytes of
// URL-safe base64.
var ErrBadPublicKey = errors.New("malformed public key")

// B64 returns standard base64 encoding without newlines.
func B64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// B64URL returns URL-safe base64 without padding.
func B64URL(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// DecodeB64URL reverses B64URL.
func DecodeB64URL(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

// DecodePublicKey parses a B64URL-encoded X25519 public key.
func DecodePublicKey(s string) (domain.X25519Public, error) {
	var pub domain.X25519Public
	raw, err := DecodeB64URL(s)
	if err != nil || len(raw) != len(pub) {
		return pub, ErrBadPublicKey
	}
	copy(pub[:], raw)
	return pub, nil
}

// Digest returns the standard base64 SHA-256 of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return B64(sum[:])
}
