package interfaces

import (
	"context"

	domaintypes "kakioki/internal/domain/types"
)

// KeyVault generates, seals and caches the local private key.
type KeyVault interface {
	GenerateKeyPair() (domaintypes.KeyPair, error)
	EncryptPrivateKey(priv domaintypes.X25519Private, password string) (string, error)
	DecryptPrivateKey(encoded, password string) (domaintypes.X25519Private, error)
	EnsurePrivateKey(password, encoded string) (domaintypes.X25519Private, error)
	PrivateKey() (domaintypes.X25519Private, error)
	PublicKey() (domaintypes.X25519Public, error)
	Clear(ctx context.Context) error
}

// SharedKeyDeriver derives the per-pair conversation key.
type SharedKeyDeriver interface {
	Derive(
		ctx context.Context,
		self, friend domaintypes.UserID,
		friendPublicKey string,
	) (domaintypes.SharedKey, error)
}
