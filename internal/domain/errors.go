package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload is returned when a ciphertext or nonce is not well formed.
	ErrInvalidPayload = errors.New("invalid encrypted payload")
	// ErrInvalidEnvelope is returned when a sealed private key cannot be parsed.
	ErrInvalidEnvelope = fmt.Errorf("%w: key envelope", ErrInvalidPayload)
	// ErrDecryptionFailed is returned when authentication of a ciphertext fails.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrPrivateKeyUnavailable is returned when no unlocked private key is held.
	ErrPrivateKeyUnavailable = errors.New("private key unavailable")
	// ErrPeerKeyUnavailable is returned when the peer public key is missing or malformed.
	ErrPeerKeyUnavailable = errors.New("peer public key unavailable")
	// ErrBlocked is returned when sending into a blocked conversation.
	ErrBlocked = errors.New("messaging is blocked")
	// ErrMessageNotFound is returned when a message is not held locally.
	ErrMessageNotFound = errors.New("message not found")
	// ErrStale marks results superseded by a newer request or conversation switch.
	ErrStale = errors.New("stale result")
)

// KeyUnavailableMessage is shown when secure messaging cannot proceed without the password.
const KeyUnavailableMessage = "secure messaging unavailable, please re-enter your password"

// IsKeyError reports whether err stems from missing or unusable key material.
func IsKeyError(err error) bool {
	return errors.Is(err, ErrPrivateKeyUnavailable) ||
		errors.Is(err, ErrInvalidEnvelope) ||
		errors.Is(err, ErrDecryptionFailed)
}

// UserMessage maps err to text suitable for display.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKeyError(err):
		return KeyUnavailableMessage
	case errors.Is(err, ErrPeerKeyUnavailable):
		return "Friend public key unavailable"
	case errors.Is(err, ErrBlocked):
		return "Messaging is blocked"
	case errors.Is(err, ErrMessageNotFound):
		return "Message not found"
	}
	return err.Error()
}
