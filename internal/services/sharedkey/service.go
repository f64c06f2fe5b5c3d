package sharedkey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"kakioki/internal/crypto"
	"kakioki/internal/domain"
	"kakioki/internal/metrics"
)

// ErrSelfConversation is returned when self and friend are the same user.
var ErrSelfConversation = errors.New("cannot derive a shared key with yourself")

// KeySource exposes the unlocked local key pair.
type KeySource interface {
	PrivateKey() (domain.X25519Private, error)
	ResolvePublicKey(provided string) (domain.X25519Public, string, error)
}

// Service derives and caches per-pair shared keys.
type Service struct {
	log     *zap.Logger
	keys    KeySource
	dir     domain.Directory
	metrics *metrics.Metrics

	mu      sync.Mutex
	selfPub string
	cache   map[string]domain.SharedKey
	flight  singleflight.Group
}

// New returns a deriver. dir may be nil, in which case missing peer keys are
// not resolved from the directory.
func New(log *zap.Logger, keys KeySource, dir domain.Directory, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:     log,
		keys:    keys,
		dir:     dir,
		metrics: metrics.OrNop(m),
		cache:   make(map[string]domain.SharedKey),
	}
}

// SetSelfPublicKey records the server-known encoding of our public key.
func (s *Service) SetSelfPublicKey(encoded string) {
	s.mu.Lock()
	s.selfPub = encoded
	s.mu.Unlock()
}

// Derive returns the shared key for (self, friend, friendPublicKey).
//
// Steps:
//   - Fail with domain.ErrPrivateKeyUnavailable when the vault is locked.
//   - Serve from the session cache when the full tuple has been seen.
//   - Otherwise run kx in the role given by id order and hash both session
//     keys into one; concurrent callers for the same tuple share the work.
func (s *Service) Derive(
	ctx context.Context,
	self, friend domain.UserID,
	friendPublicKey string,
) (domain.SharedKey, error) {
	if self == friend {
		return domain.SharedKey{}, ErrSelfConversation
	}
	if friendPublicKey == "" {
		return domain.SharedKey{}, domain.ErrPeerKeyUnavailable
	}
	priv, err := s.keys.PrivateKey()
	if err != nil {
		return domain.SharedKey{}, err
	}

	s.mu.Lock()
	provided := s.selfPub
	s.mu.Unlock()
	selfPub, selfEncoded, err := s.keys.ResolvePublicKey(provided)
	if err != nil {
		return domain.SharedKey{}, err
	}

	cacheKey := fmt.Sprintf("%d:%d:%s:%s", self, friend, selfEncoded, friendPublicKey)
	if k, ok := s.cached(cacheKey); ok {
		s.metrics.SharedKeyCacheHits.Inc()
		return k, nil
	}

	ch := s.flight.DoChan(cacheKey, func() (any, error) {
		if k, ok := s.cached(cacheKey); ok {
			return k, nil
		}
		k, err := derive(self < friend, priv, selfPub, friendPublicKey)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[cacheKey] = k
		s.mu.Unlock()
		s.metrics.SharedKeyDerivations.Inc()
		s.log.Debug("shared key derived",
			zap.Stringer("self", self),
			zap.Stringer("friend", friend),
			zap.Bool("client_role", self < friend),
		)
		return k, nil
	})

	select {
	case <-ctx.Done():
		return domain.SharedKey{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.SharedKey{}, res.Err
		}
		return res.Val.(domain.SharedKey), nil
	}
}

// Resolve derives the key for friend, fetching the peer public key from the
// directory once when it is missing or unusable. On success friend.PublicKey
// holds the key that was used.
func (s *Service) Resolve(ctx context.Context, self domain.UserID, friend *domain.Friend) (domain.SharedKey, error) {
	if friend.PublicKey != "" {
		k, err := s.Derive(ctx, self, friend.UserID, friend.PublicKey)
		if err == nil || !errors.Is(err, domain.ErrPeerKeyUnavailable) {
			return k, err
		}
		s.log.Warn("peer key unusable, refreshing profile", zap.Stringer("friend", friend.UserID))
	}
	if s.dir == nil {
		return domain.SharedKey{}, domain.ErrPeerKeyUnavailable
	}
	profile, err := s.dir.Profile(ctx, friend.UserID)
	if err != nil {
		return domain.SharedKey{}, fmt.Errorf("%w: %v", domain.ErrPeerKeyUnavailable, err)
	}
	if profile.PublicKey == "" {
		return domain.SharedKey{}, domain.ErrPeerKeyUnavailable
	}
	friend.PublicKey = profile.PublicKey
	return s.Derive(ctx, self, friend.UserID, friend.PublicKey)
}

// Clear drops every cached key.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cache {
		crypto.Wipe(v[:])
		delete(s.cache, k)
	}
	s.selfPub = ""
}

func (s *Service) cached(key string) (domain.SharedKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.cache[key]
	return k, ok
}

// derive runs kx and folds (tx, rx) from the client's point of view, which
// is (rx, tx) from the server's, into BLAKE2b-256.
func derive(
	isClient bool,
	priv domain.X25519Private,
	selfPub domain.X25519Public,
	peerEncoded string,
) (domain.SharedKey, error) {
	peer, err := crypto.DecodePublicKey(peerEncoded)
	if err != nil {
		return domain.SharedKey{}, domain.ErrPeerKeyUnavailable
	}

	var keys crypto.SessionKeys
	if isClient {
		keys, err = crypto.ClientSessionKeys(selfPub, priv, peer)
	} else {
		keys, err = crypto.ServerSessionKeys(selfPub, priv, peer)
	}
	if err != nil {
		return domain.SharedKey{}, fmt.Errorf("%w: %v", domain.ErrPeerKeyUnavailable, err)
	}
	defer crypto.Wipe(keys.Rx[:])
	defer crypto.Wipe(keys.Tx[:])

	first, second := keys.Rx, keys.Tx
	if isClient {
		first, second = keys.Tx, keys.Rx
	}
	return domain.SharedKey(crypto.GenericHash256(first[:], second[:])), nil
}

// Compile-time assertion that Service implements domain.SharedKeyDeriver.
var _ domain.SharedKeyDeriver = (*Service)(nil)
