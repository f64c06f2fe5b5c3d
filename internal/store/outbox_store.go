package store

import (
	"path/filepath"
	"sort"
	"sync"

	"kakioki/internal/domain"
)

const outboxFile = "outbox.json"

// OutboxFileStore keeps failed outgoing messages on disk, keyed by friend
// and client message id.
type OutboxFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewOutboxFileStore returns an OutboxFileStore rooted at dir.
func NewOutboxFileStore(dir string) *OutboxFileStore {
	return &OutboxFileStore{dir: dir}
}

type outbox map[string]map[string]domain.ChatMessage

// SavePending writes or replaces msg. Plaintext and decrypted media are not
// written; they are recovered from the ciphertext on load.
func (s *OutboxFileStore) SavePending(friend domain.UserID, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, outboxFile)
	box := outbox{}
	if err := readJSON(path, &box); err != nil {
		return err
	}
	m := msg.Clone()
	m.Plaintext = nil
	m.Media = nil
	key := friend.String()
	if box[key] == nil {
		box[key] = map[string]domain.ChatMessage{}
	}
	box[key][m.ClientMessageID] = m
	return writeJSON(path, box, 0o600)
}

// ListPending returns friend's pending messages oldest first.
func (s *OutboxFileStore) ListPending(friend domain.UserID) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	box := outbox{}
	if err := readJSON(filepath.Join(s.dir, outboxFile), &box); err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(box[friend.String()]))
	for _, m := range box[friend.String()] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeletePending removes one entry. Removing a missing entry is not an error.
func (s *OutboxFileStore) DeletePending(friend domain.UserID, clientMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, outboxFile)
	box := outbox{}
	if err := readJSON(path, &box); err != nil {
		return err
	}
	key := friend.String()
	if _, ok := box[key][clientMessageID]; !ok {
		return nil
	}
	delete(box[key], clientMessageID)
	if len(box[key]) == 0 {
		delete(box, key)
	}
	return writeJSON(path, box, 0o600)
}

var _ domain.OutboxStore = (*OutboxFileStore)(nil)
