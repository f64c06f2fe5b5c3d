package types

import "time"

// EventType tags realtime payloads.
type EventType string

const (
	EventMessage EventType = "chat_message"
	EventStatus  EventType = "chat_status"
	EventBlock   EventType = "chat_block"
	EventUnblock EventType = "chat_unblock"
	EventRemoved EventType = "chat_removed"
)

// Event is a decoded realtime payload.
type Event interface {
	Kind() EventType
	Thread() ThreadID
}

// MessageEvent announces a newly stored message.
//
// HasFullMetadata is false when the publisher trimmed the payload; a nil
// value means the payload is complete.
type MessageEvent struct {
	Type            EventType       `json:"type"`
	ThreadID        ThreadID        `json:"threadId"`
	ClientMessageID string          `json:"clientMessageId"`
	FromID          UserID          `json:"fromId"`
	ToID            UserID          `json:"toId"`
	Ciphertext      string          `json:"ciphertext"`
	Nonce           string          `json:"nonce"`
	Metadata        MessageMetadata `json:"metadata"`
	Status          StatusMetadata  `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	HasFullMetadata *bool           `json:"hasFullMetadata,omitempty"`
}

func (e MessageEvent) Kind() EventType  { return EventMessage }
func (e MessageEvent) Thread() ThreadID { return e.ThreadID }

// Full reports whether the event carries complete metadata.
func (e MessageEvent) Full() bool { return e.HasFullMetadata == nil || *e.HasFullMetadata }

// Record converts the event into the record shape used for decryption.
func (e MessageEvent) Record() MessageRecord {
	return MessageRecord{
		ThreadID:        e.ThreadID,
		ClientMessageID: e.ClientMessageID,
		FromID:          e.FromID,
		ToID:            e.ToID,
		Ciphertext:      e.Ciphertext,
		Nonce:           e.Nonce,
		Metadata:        e.Metadata,
		StatusMetadata:  e.Status,
		CreatedAt:       e.CreatedAt,
	}
}

// StatusEvent announces a delivery status change for one message.
type StatusEvent struct {
	Type            EventType      `json:"type"`
	ThreadID        ThreadID       `json:"threadId"`
	ClientMessageID string         `json:"clientMessageId"`
	ActorID         UserID         `json:"actorId"`
	Status          StatusMetadata `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func (e StatusEvent) Kind() EventType  { return EventStatus }
func (e StatusEvent) Thread() ThreadID { return e.ThreadID }

// ControlEvent is a block, unblock or removal of a conversation.
// Block events set BlockerID and BlockedID; removal sets InitiatorID and TargetID.
type ControlEvent struct {
	Type        EventType `json:"type"`
	ThreadID    ThreadID  `json:"threadId"`
	BlockerID   UserID    `json:"blockerId,omitempty"`
	BlockedID   UserID    `json:"blockedId,omitempty"`
	InitiatorID UserID    `json:"initiatorId,omitempty"`
	TargetID    UserID    `json:"targetId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (e ControlEvent) Kind() EventType  { return e.Type }
func (e ControlEvent) Thread() ThreadID { return e.ThreadID }
