package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kakioki/internal/domain"
)

// secretPrefix namespaces session secrets: session:secret:{scope}:{key}.
const secretPrefix = "session:secret:"

// RedisSecretStore keeps session secrets in Redis under SET EX so they
// expire without client cooperation.
type RedisSecretStore struct {
	rdb   redis.UniversalClient
	scope string
}

// NewRedisSecretStore scopes keys by scope, typically the user id.
func NewRedisSecretStore(rdb redis.UniversalClient, scope string) *RedisSecretStore {
	return &RedisSecretStore{rdb: rdb, scope: scope}
}

func (s *RedisSecretStore) key(k string) string { return secretPrefix + s.scope + ":" + k }

func (s *RedisSecretStore) Put(ctx context.Context, key, secret string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	if err := s.rdb.Set(ctx, s.key(key), secret, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

func (s *RedisSecretStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret: %w", err)
	}
	return v, true, nil
}

func (s *RedisSecretStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

var _ domain.SecretStore = (*RedisSecretStore)(nil)
