// Package sharedkey derives the symmetric key two friends use for every
// message and media reference between them.
//
// Derivation runs a libsodium-compatible kx exchange between the local
// private key and the peer's public key. The numerically smaller user id
// takes the client role so both sides agree, and the two directional session
// keys are folded into one 32-byte key with BLAKE2b. Results are cached per
// (self id, friend id, self public key, friend public key) for the session;
// concurrent callers for the same tuple share a single derivation.
package sharedkey
