package crypto

import (
	"golang.org/x/crypto/argon2"
)

// SaltBytes is the argon2id salt length (crypto_pwhash_SALTBYTES).
const SaltBytes = 16

// KDFParams tunes argon2id.
type KDFParams struct {
	Time      uint32 `yaml:"ops"`
	MemoryKiB uint32 `yaml:"memory_kib"`
	Threads   uint8  `yaml:"threads"`
}

// DefaultKDFParams mirrors crypto_pwhash OPSLIMIT_MODERATE / MEMLIMIT_MODERATE.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, MemoryKiB: 256 * 1024, Threads: 1}
}

// DeriveKEK stretches password into a 32-byte key-encryption key.
func DeriveKEK(password string, salt []byte, p KDFParams) [KeyBytes]byte {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		p = DefaultKDFParams()
	}
	raw := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, KeyBytes)
	var kek [KeyBytes]byte
	copy(kek[:], raw)
	Wipe(raw)
	return kek
}
