package types

import (
	"strconv"
	"time"
)

// UserID identifies an account on the persistence service.
type UserID int64

// String returns the decimal form of the identifier.
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ThreadID identifies a one-to-one conversation thread.
type ThreadID string

// String returns the string form of the thread identifier.
func (id ThreadID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Friend is the peer side of a conversation as known to the client.
type Friend struct {
	UserID    UserID   `json:"userId"`
	Username  string   `json:"username,omitempty"`
	PublicKey string   `json:"publicKey,omitempty"`
	ThreadID  ThreadID `json:"threadId,omitempty"`

	BlockedBySelf   bool       `json:"blockedBySelf,omitempty"`
	BlockedByFriend bool       `json:"blockedByFriend,omitempty"`
	BlockCreatedAt  *time.Time `json:"blockCreatedAt,omitempty"`
}

// Profile is the public directory entry for a user.
type Profile struct {
	UserID    UserID `json:"userId"`
	Username  string `json:"username,omitempty"`
	PublicKey string `json:"publicKey"`
}

// Account is the signed-in user with their password-sealed private key.
type Account struct {
	UserID             UserID `json:"userId"`
	Username           string `json:"username,omitempty"`
	PublicKey          string `json:"publicKey"`
	SecretKeyEncrypted string `json:"secretKeyEncrypted"`
}

// BusMessage is a raw payload received on a realtime topic.
type BusMessage struct {
	Topic   string
	Payload []byte
}
