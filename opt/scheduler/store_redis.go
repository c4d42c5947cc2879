package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints in Redis with a TTL, for deployments where
// workers share no filesystem. Keys are <prefix><scenario-id>.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl means checkpoints never
// expire.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "cdst:checkpoint:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(scenarioID string) string { return s.prefix + scenarioID }

func (s *RedisStore) Save(ctx context.Context, scenarioID string, data []byte) error {
	if err := s.client.Set(ctx, s.key(scenarioID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving checkpoint to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, scenarioID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(scenarioID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint from redis: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, scenarioID string) error {
	if err := s.client.Del(ctx, s.key(scenarioID)).Err(); err != nil {
		return fmt.Errorf("deleting checkpoint from redis: %w", err)
	}
	return nil
}
