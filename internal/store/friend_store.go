package store

import (
	"path/filepath"
	"sort"
	"sync"

	"kakioki/internal/domain"
)

const friendsFile = "friends.json"

// FriendFileStore caches peers and their thread bindings on disk.
type FriendFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFriendFileStore returns a FriendFileStore rooted at dir.
func NewFriendFileStore(dir string) *FriendFileStore {
	return &FriendFileStore{dir: dir}
}

// SaveFriend writes or replaces the record for friend.UserID.
func (s *FriendFileStore) SaveFriend(friend domain.Friend) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, friendsFile)
	friends := map[string]domain.Friend{}
	if err := readJSON(path, &friends); err != nil {
		return err
	}
	friends[friend.UserID.String()] = friend
	return writeJSON(path, friends, 0o600)
}

// LoadFriend returns the cached record for id.
func (s *FriendFileStore) LoadFriend(id domain.UserID) (domain.Friend, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	friends := map[string]domain.Friend{}
	if err := readJSON(filepath.Join(s.dir, friendsFile), &friends); err != nil {
		return domain.Friend{}, false, err
	}
	f, ok := friends[id.String()]
	return f, ok, nil
}

// ListFriends returns all cached friends ordered by user id.
func (s *FriendFileStore) ListFriends() ([]domain.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	friends := map[string]domain.Friend{}
	if err := readJSON(filepath.Join(s.dir, friendsFile), &friends); err != nil {
		return nil, err
	}
	out := make([]domain.Friend, 0, len(friends))
	for _, f := range friends {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Compile-time assertion that FriendFileStore implements domain.FriendStore.
var _ domain.FriendStore = (*FriendFileStore)(nil)
