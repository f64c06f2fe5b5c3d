package interfaces

import (
	"context"
	"time"

	domaintypes "kakioki/internal/domain/types"
)

// AccountStore persists the signed-in account and its sealed private key.
type AccountStore interface {
	SaveAccount(acct domaintypes.Account) error
	LoadAccount() (domaintypes.Account, bool, error)
	DeleteAccount() error
}

// FriendStore caches peers, their public keys and thread bindings.
type FriendStore interface {
	SaveFriend(friend domaintypes.Friend) error
	LoadFriend(id domaintypes.UserID) (domaintypes.Friend, bool, error)
	ListFriends() ([]domaintypes.Friend, error)
}

// OutboxStore keeps outgoing messages whose send failed so they can be
// retried from a later process. Entries hold ciphertext only.
type OutboxStore interface {
	SavePending(friend domaintypes.UserID, msg domaintypes.ChatMessage) error
	ListPending(friend domaintypes.UserID) ([]domaintypes.ChatMessage, error)
	DeletePending(friend domaintypes.UserID, clientMessageID string) error
}

// SecretStore keeps short-lived session secrets such as the unlock password.
type SecretStore interface {
	Put(ctx context.Context, key, secret string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}
