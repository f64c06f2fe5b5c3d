package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"kakioki/internal/domain"
)

const accountFile = "account.json"

// AccountFileStore persists the signed-in account to disk. The private key
// is only ever written in its password-sealed form.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccount stores or replaces the account.
func (s *AccountFileStore) SaveAccount(acct domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(filepath.Join(s.dir, accountFile), acct, 0o600)
}

// LoadAccount returns the stored account, if any.
func (s *AccountFileStore) LoadAccount() (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var acct domain.Account
	if err := readJSON(filepath.Join(s.dir, accountFile), &acct); err != nil {
		return domain.Account{}, false, err
	}
	if acct.SecretKeyEncrypted == "" {
		return domain.Account{}, false, nil
	}
	return acct, true, nil
}

// DeleteAccount removes the stored account. A missing file is not an error.
func (s *AccountFileStore) DeleteAccount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, accountFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)
