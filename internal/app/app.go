package app

import (
	"context"
	"errors"
	"fmt"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
)

// ErrNoAccount is returned before keygen has run.
var ErrNoAccount = errors.New("no account, run keygen first")

// CreateAccount generates a key pair, seals the private key under password,
// stores the account locally and publishes the public key to the relay.
func (w *Wire) CreateAccount(ctx context.Context, username, password string) (domain.Account, error) {
	if w.Config.UserID <= 0 {
		return domain.Account{}, errors.New("user_id is required")
	}
	if password == "" {
		return domain.Account{}, errors.New("password is required")
	}
	kp, err := w.Vault.GenerateKeyPair()
	if err != nil {
		return domain.Account{}, err
	}
	defer crypto.Wipe(kp.Private[:])
	sealed, err := w.Vault.EncryptPrivateKey(kp.Private, password)
	if err != nil {
		return domain.Account{}, err
	}
	acct := domain.Account{
		UserID:             w.Config.UserID,
		Username:           username,
		PublicKey:          crypto.B64URL(kp.Public[:]),
		SecretKeyEncrypted: sealed,
	}
	if err := w.Accounts.SaveAccount(acct); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	if err := w.Relay.PublishProfile(ctx, username, acct.PublicKey); err != nil {
		return acct, fmt.Errorf("publish profile: %w", err)
	}
	return acct, nil
}

// Account loads the local account.
func (w *Wire) Account() (domain.Account, error) {
	acct, ok, err := w.Accounts.LoadAccount()
	if err != nil {
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, ErrNoAccount
	}
	return acct, nil
}

// Unlock opens the private key. With an empty password it only restores
// from a retained session password.
func (w *Wire) Unlock(ctx context.Context, password string) (domain.Account, error) {
	acct, err := w.Account()
	if err != nil {
		return domain.Account{}, err
	}
	if password == "" {
		if _, err := w.Vault.Available(ctx, acct.SecretKeyEncrypted); err != nil {
			return domain.Account{}, err
		}
	} else if _, err := w.Vault.Unlock(ctx, password, acct.SecretKeyEncrypted); err != nil {
		return domain.Account{}, err
	}
	w.Keys.SetSelfPublicKey(acct.PublicKey)
	return acct, nil
}

// Friend returns the cached friend, falling back to a bare entry whose
// public key is resolved from the directory on first use.
func (w *Wire) Friend(id domain.UserID) (domain.Friend, error) {
	f, ok, err := w.Friends.LoadFriend(id)
	if err != nil {
		return domain.Friend{}, err
	}
	if !ok {
		return domain.Friend{UserID: id}, nil
	}
	return f, nil
}

// Logout drops every cached key and the retained session password.
func (w *Wire) Logout(ctx context.Context) error {
	w.Keys.Clear()
	return w.Vault.Clear(ctx)
}
