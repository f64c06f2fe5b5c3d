package interfaces

import (
	"context"

	domaintypes "kakioki/internal/domain/types"
)

// PersistenceService stores encrypted messages and thread state, all with context.
type PersistenceService interface {
	OpenThread(ctx context.Context, peer domaintypes.UserID) (domaintypes.Thread, error)
	FetchHistory(
		ctx context.Context,
		threadID domaintypes.ThreadID,
		query domaintypes.HistoryQuery,
	) (domaintypes.HistoryPage, error)
	// FetchMessage returns nil without error when the record does not exist.
	FetchMessage(
		ctx context.Context,
		threadID domaintypes.ThreadID,
		clientMessageID string,
	) (*domaintypes.MessageRecord, error)
	SendMessage(ctx context.Context, req domaintypes.SendRequest) (domaintypes.SendResult, error)
	UpdateStatus(ctx context.Context, req domaintypes.StatusRequest) ([]domaintypes.MessageRecord, error)

	Block(ctx context.Context, req domaintypes.ControlRequest) (domaintypes.ControlResult, error)
	Unblock(ctx context.Context, req domaintypes.ControlRequest) (domaintypes.ControlResult, error)
	Remove(ctx context.Context, req domaintypes.ControlRequest) (domaintypes.ControlResult, error)
}

// Directory resolves public profiles, chiefly peer public keys.
type Directory interface {
	Profile(ctx context.Context, id domaintypes.UserID) (domaintypes.Profile, error)
}

// RealtimeBus delivers per-thread events at least once, unordered across topics.
type RealtimeBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Subscription is a live set of topic subscriptions.
type Subscription interface {
	Messages() <-chan domaintypes.BusMessage
	Close() error
}
