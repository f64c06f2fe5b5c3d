package crypto

import (
	"crypto/rand"
	"fmt"
	"strings"

	"kakioki/internal/domain"
)

// EnvelopeVersion is the only sealed-key format this package writes or reads.
const EnvelopeVersion = "v1"

// EncodeEnvelope renders env as "v1:<salt>.<nonce>.<ciphertext>".
func EncodeEnvelope(env domain.EncryptedKeyEnvelope) string {
	return env.Version + ":" + B64URL(env.Salt[:]) + "." + B64URL(env.Nonce[:]) + "." + B64URL(env.Ciphertext)
}

// ParseEnvelope decodes the portable form. Any structural problem yields
// domain.ErrInvalidEnvelope.
func ParseEnvelope(s string) (domain.EncryptedKeyEnvelope, error) {
	var env domain.EncryptedKeyEnvelope

	version, payload, ok := strings.Cut(s, ":")
	if !ok || version == "" || payload == "" {
		return env, domain.ErrInvalidEnvelope
	}
	if version != EnvelopeVersion {
		return env, fmt.Errorf("%w: unsupported version %q", domain.ErrInvalidEnvelope, version)
	}
	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return env, domain.ErrInvalidEnvelope
	}

	salt, err := DecodeB64URL(parts[0])
	if err != nil || len(salt) != SaltBytes {
		return env, fmt.Errorf("%w: salt", domain.ErrInvalidEnvelope)
	}
	nonce, err := DecodeB64URL(parts[1])
	if err != nil || len(nonce) != NonceBytes {
		return env, fmt.Errorf("%w: nonce", domain.ErrInvalidEnvelope)
	}
	ct, err := DecodeB64URL(parts[2])
	if err != nil || len(ct) == 0 {
		return env, fmt.Errorf("%w: ciphertext", domain.ErrInvalidEnvelope)
	}

	env.Version = version
	copy(env.Salt[:], salt)
	copy(env.Nonce[:], nonce)
	env.Ciphertext = ct
	return env, nil
}

// SealPrivateKey encrypts priv under a key stretched from password.
func SealPrivateKey(priv domain.X25519Private, password string, p KDFParams) (string, error) {
	env := domain.EncryptedKeyEnvelope{Version: EnvelopeVersion}
	if _, err := rand.Read(env.Salt[:]); err != nil {
		return "", err
	}
	if _, err := rand.Read(env.Nonce[:]); err != nil {
		return "", err
	}

	kek := DeriveKEK(password, env.Salt[:], p)
	defer Wipe(kek[:])

	env.Ciphertext = Seal(&kek, &env.Nonce, priv[:])
	return EncodeEnvelope(env), nil
}

// OpenPrivateKey reverses SealPrivateKey. A wrong password yields
// domain.ErrDecryptionFailed.
func OpenPrivateKey(encoded, password string, p KDFParams) (domain.X25519Private, error) {
	var priv domain.X25519Private

	env, err := ParseEnvelope(encoded)
	if err != nil {
		return priv, err
	}

	kek := DeriveKEK(password, env.Salt[:], p)
	defer Wipe(kek[:])

	pt, err := Open(&kek, &env.Nonce, env.Ciphertext)
	if err != nil {
		return priv, err
	}
	defer Wipe(pt)
	if len(pt) != len(priv) {
		return priv, fmt.Errorf("%w: key length %d", domain.ErrInvalidEnvelope, len(pt))
	}
	copy(priv[:], pt)
	return priv, nil
}
