package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedMarker = "revoked"

// TokenBlacklistStorage is the shared revocation backend. Entries expire
// natively in Redis, so no sweep is needed on this side.
type TokenBlacklistStorage struct {
	client *redis.Client
	prefix string
}

func NewTokenBlacklistStorage(client *redis.Client) *TokenBlacklistStorage {
	return &TokenBlacklistStorage{client: client, prefix: "blacklist:"}
}

func (s *TokenBlacklistStorage) Add(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, revokedMarker, ttl).Err()
}

func (s *TokenBlacklistStorage) Has(ctx context.Context, key string) (bool, error) {
	result, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == revokedMarker, nil
}

func (s *TokenBlacklistStorage) Close() error {
	return s.client.Close()
}
