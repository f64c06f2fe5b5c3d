package cipher

import (
	"fmt"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
)

// EncryptText seals text under key with a fresh nonce.
func EncryptText(key domain.SharedKey, text string) (ciphertext, nonce string, err error) {
	n, err := crypto.NewNonce()
	if err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	k := [crypto.KeyBytes]byte(key)
	defer crypto.Wipe(k[:])
	ct := crypto.Seal(&k, &n, []byte(text))
	return crypto.B64URL(ct), crypto.B64URL(n[:]), nil
}

// DecryptText reverses EncryptText. Malformed encodings return
// domain.ErrInvalidPayload; an authentication failure returns
// domain.ErrDecryptionFailed.
func DecryptText(key domain.SharedKey, ciphertext, nonce string) (string, error) {
	ct, err := crypto.DecodeB64URL(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", domain.ErrInvalidPayload, err)
	}
	rawNonce, err := crypto.DecodeB64URL(nonce)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", domain.ErrInvalidPayload, err)
	}
	if len(rawNonce) != crypto.NonceBytes {
		return "", fmt.Errorf("%w: nonce length %d", domain.ErrInvalidPayload, len(rawNonce))
	}
	var n [crypto.NonceBytes]byte
	copy(n[:], rawNonce)

	k := [crypto.KeyBytes]byte(key)
	defer crypto.Wipe(k[:])
	pt, err := crypto.Open(&k, &n, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
