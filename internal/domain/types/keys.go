package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// KeyPair is a user's long-term X25519 key pair.
type KeyPair struct {
	Public  X25519Public
	Private X25519Private
}

// SharedKey is the symmetric key two peers derive for their conversation.
type SharedKey [32]byte

// Slice returns the key as a []byte.
func (k SharedKey) Slice() []byte { return k[:] }

// EncryptedKeyEnvelope is a private key sealed under a password-derived key.
//
// Its portable string form is "v1:<salt>.<nonce>.<ciphertext>" with each part
// URL-safe base64 without padding.
type EncryptedKeyEnvelope struct {
	Version    string
	Salt       [16]byte
	Nonce      [24]byte
	Ciphertext []byte
}
