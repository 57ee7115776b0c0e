package obligation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMarkerStore shares fired markers between engine instances. The
// false-to-true transition rides on SETNX, so exactly one dispatcher wins
// even under concurrent scheduler ticks.
type RedisMarkerStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMarkerStore wraps a redis client. Markers expire after ttl; zero
// keeps them forever.
func NewRedisMarkerStore(client *redis.Client, prefix string, ttl time.Duration) *RedisMarkerStore {
	if prefix == "" {
		prefix = "slaengine:fired:"
	}
	return &RedisMarkerStore{client: client, prefix: prefix, ttl: ttl}
}

// MarkFired sets the marker if absent and reports whether this call won.
func (s *RedisMarkerStore) MarkFired(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+id, 1, s.ttl).Result()
}

// Fired reports whether the marker exists.
func (s *RedisMarkerStore) Fired(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
