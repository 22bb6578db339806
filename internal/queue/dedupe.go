package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduplicator remembers message keys for a TTL using SET NX.
type RedisDeduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

// FirstSeen reports whether key was not seen within the TTL, and records it.
func (d *RedisDeduplicator) FirstSeen(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, key, 1, d.ttl).Result()
}
