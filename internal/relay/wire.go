package relay

import "kakioki/internal/domain"

// UserHeader carries the acting user id. The development relay trusts it.
const UserHeader = "X-User-ID"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type threadRequest struct {
	PeerID domain.UserID `json:"peerId"`
}

type threadResponse struct {
	Success bool          `json:"success"`
	Thread  domain.Thread `json:"thread"`
}

type historyResponse struct {
	Success  bool                   `json:"success"`
	Thread   domain.HistoryThread   `json:"thread"`
	Messages []domain.MessageRecord `json:"messages"`
}

type messageResponse struct {
	Success bool                 `json:"success"`
	Message domain.MessageRecord `json:"message"`
}

type sendResponse struct {
	Success  bool                 `json:"success"`
	ThreadID domain.ThreadID      `json:"threadId"`
	Message  domain.MessageRecord `json:"message"`
}

type statusResponse struct {
	Success bool                   `json:"success"`
	Updated []domain.MessageRecord `json:"updated"`
}

type controlResponse struct {
	Success  bool            `json:"success"`
	ThreadID domain.ThreadID `json:"threadId"`
}

type profileEntry struct {
	ID        domain.UserID `json:"id"`
	Username  string        `json:"username,omitempty"`
	PublicKey string        `json:"publicKey"`
}

type profileResponse struct {
	Friend profileEntry `json:"friend"`
}

type publishProfileRequest struct {
	Username  string `json:"username,omitempty"`
	PublicKey string `json:"publicKey"`
}
