package types

import "time"

// Thread is a conversation between two users.
type Thread struct {
	ThreadID  ThreadID  `json:"threadId"`
	UserAID   UserID    `json:"userAId"`
	UserBID   UserID    `json:"userBId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other returns the participant that is not self.
func (t Thread) Other(self UserID) UserID {
	if t.UserAID == self {
		return t.UserBID
	}
	return t.UserAID
}

// Has reports whether id participates in the thread.
func (t Thread) Has(id UserID) bool { return t.UserAID == id || t.UserBID == id }

// BlockState is the block relationship as seen from self.
type BlockState struct {
	BlockedBySelf   bool       `json:"blockedBySelf"`
	BlockedByFriend bool       `json:"blockedByFriend"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// IsBlocked reports whether either side has blocked the other.
func (b BlockState) IsBlocked() bool { return b.BlockedBySelf || b.BlockedByFriend }

// ThreadBlock is the block summary returned with thread history.
type ThreadBlock struct {
	IsBlocked      bool       `json:"isBlocked"`
	BlockedBySelf  bool       `json:"blockedBySelf"`
	BlockedByOther bool       `json:"blockedByOther"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

// MessageRecord is an encrypted message as stored by the persistence service.
type MessageRecord struct {
	ID              *int64          `json:"id,omitempty"`
	ThreadID        ThreadID        `json:"threadId,omitempty"`
	ClientMessageID string          `json:"clientMessageId"`
	FromID          UserID          `json:"fromId"`
	ToID            UserID          `json:"toId"`
	Ciphertext      string          `json:"ciphertext"`
	Nonce           string          `json:"nonce"`
	Metadata        MessageMetadata `json:"metadata"`
	StatusMetadata  StatusMetadata  `json:"statusMetadata"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// SendRequest asks the persistence service to store an encrypted message.
type SendRequest struct {
	ThreadID        ThreadID        `json:"threadId,omitempty"`
	ToUserID        UserID          `json:"toUserId"`
	ClientMessageID string          `json:"clientMessageId"`
	Ciphertext      string          `json:"ciphertext"`
	Nonce           string          `json:"nonce"`
	Metadata        MessageMetadata `json:"metadata"`
	Status          StatusMetadata  `json:"status"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
}

// SendResult is the stored record and the canonical thread it landed in.
type SendResult struct {
	ThreadID ThreadID      `json:"threadId"`
	Message  MessageRecord `json:"message"`
}

// HistoryQuery pages through a thread. A nil After returns the newest page.
type HistoryQuery struct {
	Limit int
	After *time.Time
}

// HistoryThread describes the thread in a history response.
type HistoryThread struct {
	ThreadID     ThreadID     `json:"threadId"`
	Participants []UserID     `json:"participants,omitempty"`
	IsFriend     bool         `json:"isFriend"`
	Block        *ThreadBlock `json:"block,omitempty"`
}

// HistoryPage is one page of thread history in ascending createdAt order.
type HistoryPage struct {
	Thread   HistoryThread   `json:"thread"`
	Messages []MessageRecord `json:"messages"`
}

// StatusRequest updates delivery status for messages in a thread.
type StatusRequest struct {
	ThreadID   ThreadID       `json:"threadId"`
	MessageIDs []string       `json:"messageIds"`
	Status     StatusMetadata `json:"status"`
}

// ControlRequest targets a block, unblock or remove action.
type ControlRequest struct {
	ThreadID     ThreadID `json:"threadId,omitempty"`
	TargetUserID UserID   `json:"targetUserId"`
}

// ControlResult echoes the thread a control action applied to.
type ControlResult struct {
	ThreadID ThreadID `json:"threadId,omitempty"`
}
