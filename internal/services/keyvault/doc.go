// Package keyvault holds the user's long-term key pair for the session.
//
// It generates X25519 key pairs, seals the private key under a password with
// argon2id and XSalsa20-Poly1305, and keeps the unlocked private key (and the
// public key derived from it) in memory until Clear is called. The unlock
// password may be retained in a domain.SecretStore for a configurable window
// so a restarted client can re-unlock silently; a zero window disables this.
package keyvault
