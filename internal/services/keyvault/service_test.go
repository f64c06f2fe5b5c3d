package keyvault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
	"kakioki/internal/services/keyvault"
	"kakioki/internal/store"
)

var cheap = crypto.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

// newVault returns a vault with cheap KDF parameters and an in-memory secret store.
func newVault(t *testing.T, ttl time.Duration) (*keyvault.Vault, *store.MemorySecretStore) {
	t.Helper()
	secrets := store.NewMemorySecretStore()
	return keyvault.New(nil, secrets, keyvault.Options{KDF: cheap, PasswordTTL: ttl}), secrets
}

// sealed generates a key pair and seals it under password.
func sealed(t *testing.T, v *keyvault.Vault, password string) (domain.KeyPair, string) {
	t.Helper()
	kp, err := v.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	enc, err := v.EncryptPrivateKey(kp.Private, password)
	if err != nil {
		t.Fatalf("EncryptPrivateKey: %v", err)
	}
	return kp, enc
}

func TestVault_KeyRoundTrip(t *testing.T) {
	v, _ := newVault(t, 0)
	kp, enc := sealed(t, v, "pässwörd ✓")

	got, err := v.DecryptPrivateKey(enc, "pässwörd ✓")
	if err != nil {
		t.Fatalf("DecryptPrivateKey: %v", err)
	}
	if got != kp.Private {
		t.Fatal("private key mismatch")
	}
	if _, err := v.DecryptPrivateKey(enc, "other"); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := v.DecryptPrivateKey("v1:only.two", "x"); !errors.Is(err, domain.ErrInvalidEnvelope) {
		t.Fatalf("malformed: got %v", err)
	}
}

func TestVault_EnsurePrivateKeyIsIdempotent(t *testing.T) {
	v, _ := newVault(t, 0)
	kp, enc := sealed(t, v, "pw")

	if _, err := v.PrivateKey(); !errors.Is(err, domain.ErrPrivateKeyUnavailable) {
		t.Fatalf("locked vault: got %v", err)
	}
	if _, err := v.EnsurePrivateKey("pw", enc); err != nil {
		t.Fatalf("EnsurePrivateKey: %v", err)
	}
	// Cached: a wrong password no longer matters.
	got, err := v.EnsurePrivateKey("wrong", enc)
	if err != nil {
		t.Fatalf("cached EnsurePrivateKey: %v", err)
	}
	if got != kp.Private {
		t.Fatal("cached key mismatch")
	}
	pub, err := v.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if pub != kp.Public {
		t.Fatal("derived public key mismatch")
	}
}

func TestVault_RestoreFromRetainedPassword(t *testing.T) {
	ctx := context.Background()
	v, secrets := newVault(t, time.Minute)
	kp, enc := sealed(t, v, "pw")

	if _, err := v.Unlock(ctx, "pw", enc); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	// A fresh vault sharing the secret store simulates a restarted client.
	restarted := keyvault.New(nil, secrets, keyvault.Options{KDF: cheap, PasswordTTL: time.Minute})
	ok, err := restarted.Restore(ctx, enc)
	if err != nil || !ok {
		t.Fatalf("Restore: ok=%v err=%v", ok, err)
	}
	got, _ := restarted.PrivateKey()
	if got != kp.Private {
		t.Fatal("restored key mismatch")
	}

	if err := restarted.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := restarted.Available(ctx, enc); !errors.Is(err, domain.ErrPrivateKeyUnavailable) {
		t.Fatalf("after clear: got %v", err)
	}
}

func TestVault_ZeroTTLRetainsNothing(t *testing.T) {
	ctx := context.Background()
	v, secrets := newVault(t, 0)
	_, enc := sealed(t, v, "pw")

	if _, err := v.Unlock(ctx, "pw", enc); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, ok, _ := secrets.Get(ctx, keyvault.DefaultSecretKey); ok {
		t.Fatal("password retained with zero ttl")
	}
}

func TestVault_ResolvePublicKeyTrustsProvided(t *testing.T) {
	v, _ := newVault(t, 0)
	kp, enc := sealed(t, v, "pw")
	if _, err := v.EnsurePrivateKey("pw", enc); err != nil {
		t.Fatalf("EnsurePrivateKey: %v", err)
	}

	provided := crypto.B64URL(kp.Public[:])
	pub, encoded, err := v.ResolvePublicKey(provided)
	if err != nil {
		t.Fatalf("ResolvePublicKey: %v", err)
	}
	if pub != kp.Public || encoded != provided {
		t.Fatal("provided encoding not honoured")
	}

	// Undecodable input falls back to derivation.
	pub, encoded, err = v.ResolvePublicKey("!!")
	if err != nil {
		t.Fatalf("ResolvePublicKey fallback: %v", err)
	}
	if pub != kp.Public || encoded != provided {
		t.Fatal("fallback derivation mismatch")
	}
}
