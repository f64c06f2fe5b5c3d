// Package crypto exposes the minimal primitives used by kakioki.
//
// Contents
//
//   - X25519 key generation and Diffie–Hellman (GenerateX25519,
//     PublicFromPrivate, DH)
//   - libsodium-compatible key exchange (ClientSessionKeys,
//     ServerSessionKeys) and BLAKE2b-256 hashing (GenericHash256)
//   - XSalsa20-Poly1305 authenticated encryption (Seal, Open, NewNonce)
//   - argon2id password stretching (DeriveKEK, KDFParams)
//   - The "v1:" sealed private key envelope (SealPrivateKey,
//     OpenPrivateKey, ParseEnvelope)
//   - URL-safe base64, SHA-256 digests and short fingerprints
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// Every format here is byte-compatible with the libsodium primitives used by
// the browser client, so keys and ciphertexts interoperate in both directions.
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory.
package crypto
