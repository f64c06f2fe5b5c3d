// Package store provides local persistence for the kakioki client.
//
// It contains concrete implementations of the domain storage interfaces.
// File stores serialise JSON under the user's configured home directory and
// replace files atomically; all methods are concurrency-safe via internal
// locking.
//
// The package includes:
//   - The signed-in account with its sealed private key (AccountFileStore)
//   - Friends, their public keys and thread bindings (FriendFileStore)
//   - Session secrets with expiry, in memory (MemorySecretStore), in Redis
//     (RedisSecretStore) or disabled (NoopSecretStore)
//
// Plaintext private keys are never written by this package.
package store
