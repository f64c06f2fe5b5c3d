package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"kakioki/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a public key, grouped in
// fours for reading aloud.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub domain.X25519Public) domain.Fingerprint {
	sum := sha256.Sum256(pub[:])
	h := hex.EncodeToString(sum[:10])
	out := make([]byte, 0, len(h)+len(h)/4)
	for i := 0; i < len(h); i += 4 {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, h[i:i+4]...)
	}
	return domain.Fingerprint(out)
}
