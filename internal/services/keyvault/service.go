package keyvault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
)

// DefaultSecretKey names the retained unlock password in the secret store.
const DefaultSecretKey = "kakiokiPassword"

// Options tunes the vault.
type Options struct {
	KDF crypto.KDFParams
	// PasswordTTL bounds how long the unlock password is retained. Zero disables retention.
	PasswordTTL time.Duration
	// SecretKey overrides DefaultSecretKey.
	SecretKey string
}

// Vault caches the unlocked private key for the session.
type Vault struct {
	log     *zap.Logger
	secrets domain.SecretStore
	opts    Options

	mu         sync.Mutex
	priv       *domain.X25519Private
	pub        *domain.X25519Public
	pubEncoded string
}

// New returns a vault. secrets may be nil, which disables password retention.
func New(log *zap.Logger, secrets domain.SecretStore, opts Options) *Vault {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SecretKey == "" {
		opts.SecretKey = DefaultSecretKey
	}
	if opts.KDF == (crypto.KDFParams{}) {
		opts.KDF = crypto.DefaultKDFParams()
	}
	return &Vault{log: log, secrets: secrets, opts: opts}
}

// GenerateKeyPair returns a fresh key pair. It does not touch the session cache.
func (v *Vault) GenerateKeyPair() (domain.KeyPair, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return domain.KeyPair{Public: pub, Private: priv}, nil
}

// EncryptPrivateKey seals priv under password in the portable "v1:" form.
func (v *Vault) EncryptPrivateKey(priv domain.X25519Private, password string) (string, error) {
	return crypto.SealPrivateKey(priv, password, v.opts.KDF)
}

// DecryptPrivateKey opens an envelope produced by EncryptPrivateKey.
//
// Malformed input yields domain.ErrInvalidEnvelope; a wrong password or
// tampered ciphertext yields domain.ErrDecryptionFailed.
func (v *Vault) DecryptPrivateKey(encoded, password string) (domain.X25519Private, error) {
	return crypto.OpenPrivateKey(encoded, password, v.opts.KDF)
}

// EnsurePrivateKey returns the cached key if the vault is unlocked, otherwise
// decrypts encoded with password and caches the result.
func (v *Vault) EnsurePrivateKey(password, encoded string) (domain.X25519Private, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.priv != nil {
		return *v.priv, nil
	}
	if password == "" || encoded == "" {
		return domain.X25519Private{}, domain.ErrPrivateKeyUnavailable
	}
	priv, err := v.DecryptPrivateKey(encoded, password)
	if err != nil {
		return domain.X25519Private{}, err
	}
	v.store(priv)
	return priv, nil
}

// Unlock decrypts the private key and retains password for the configured window.
func (v *Vault) Unlock(ctx context.Context, password, encoded string) (domain.X25519Private, error) {
	priv, err := v.EnsurePrivateKey(password, encoded)
	if err != nil {
		v.log.Warn("unlock failed", zap.Error(err))
		return domain.X25519Private{}, err
	}
	if v.secrets != nil && v.opts.PasswordTTL > 0 {
		if err := v.secrets.Put(ctx, v.opts.SecretKey, password, v.opts.PasswordTTL); err != nil {
			// The key is unlocked; only silent re-unlock is lost.
			v.log.Warn("retain session password", zap.Error(err))
		}
	}
	v.log.Debug("private key unlocked", zap.Duration("password_ttl", v.opts.PasswordTTL))
	return priv, nil
}

// Restore re-unlocks from a retained password. It reports false without error
// when no password is retained. A retained password that no longer opens
// encoded is discarded.
func (v *Vault) Restore(ctx context.Context, encoded string) (bool, error) {
	if v.unlocked() {
		return true, nil
	}
	if encoded == "" || v.secrets == nil {
		return false, nil
	}
	password, ok, err := v.secrets.Get(ctx, v.opts.SecretKey)
	if err != nil {
		return false, fmt.Errorf("read session password: %w", err)
	}
	if !ok {
		v.log.Debug("no retained session password")
		return false, nil
	}
	if _, err := v.EnsurePrivateKey(password, encoded); err != nil {
		if errors.Is(err, domain.ErrDecryptionFailed) {
			_ = v.secrets.Delete(ctx, v.opts.SecretKey)
		}
		return false, err
	}
	return true, nil
}

// Available returns the unlocked key, restoring it from the session when possible.
func (v *Vault) Available(ctx context.Context, encoded string) (domain.X25519Private, error) {
	if ok, err := v.Restore(ctx, encoded); err != nil || !ok {
		if err != nil {
			v.log.Warn("restore private key", zap.Error(err))
		}
		return domain.X25519Private{}, domain.ErrPrivateKeyUnavailable
	}
	return v.PrivateKey()
}

// PrivateKey returns the cached private key.
func (v *Vault) PrivateKey() (domain.X25519Private, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.priv == nil {
		return domain.X25519Private{}, domain.ErrPrivateKeyUnavailable
	}
	return *v.priv, nil
}

// PublicKey returns the public key for the cached private key.
func (v *Vault) PublicKey() (domain.X25519Public, error) {
	pub, _, err := v.ResolvePublicKey("")
	return pub, err
}

// ResolvePublicKey returns the self public key and its encoded form.
//
// A server-known encoding in provided is trusted and cached as-is; otherwise
// the key is derived from the private key.
func (v *Vault) ResolvePublicKey(provided string) (domain.X25519Public, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.priv == nil {
		return domain.X25519Public{}, "", domain.ErrPrivateKeyUnavailable
	}
	if provided != "" {
		if v.pub != nil && v.pubEncoded == provided {
			return *v.pub, v.pubEncoded, nil
		}
		if raw, err := crypto.DecodeB64URL(provided); err == nil && len(raw) == 32 {
			var pub domain.X25519Public
			copy(pub[:], raw)
			v.pub, v.pubEncoded = &pub, provided
			return pub, provided, nil
		}
		v.pub, v.pubEncoded = nil, ""
	}
	if v.pub != nil {
		return *v.pub, v.pubEncoded, nil
	}
	pub, err := crypto.PublicFromPrivate(*v.priv)
	if err != nil {
		return domain.X25519Public{}, "", err
	}
	v.pub, v.pubEncoded = &pub, crypto.B64URL(pub[:])
	return pub, v.pubEncoded, nil
}

// Clear wipes the cached keys and the retained password.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	if v.priv != nil {
		crypto.Wipe(v.priv[:])
	}
	v.priv, v.pub, v.pubEncoded = nil, nil, ""
	v.mu.Unlock()

	if v.secrets != nil {
		if err := v.secrets.Delete(ctx, v.opts.SecretKey); err != nil {
			return fmt.Errorf("clear session password: %w", err)
		}
	}
	return nil
}

func (v *Vault) unlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.priv != nil
}

// store caches priv and drops any stale public key. Caller holds v.mu.
func (v *Vault) store(priv domain.X25519Private) {
	p := priv
	v.priv = &p
	v.pub, v.pubEncoded = nil, ""
}

// Compile-time assertion that Vault implements domain.KeyVault.
var _ domain.KeyVault = (*Vault)(nil)
