package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

// RedisStore is an alternative Working-layer backend that delegates TTL
// enforcement to Redis's native key expiry (EXPIRE) instead of the
// in-process polling sweeper. SweepExpired is a no-op here since Redis
// collects expired keys itself; it exists only to satisfy WorkingStore.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing *redis.Client. keyPrefix namespaces this
// swarm run's keys so multiple runs can share one Redis instance/miniredis.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (r *RedisStore) fullKey(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisStore) Set(ctx context.Context, key string, entry swarmtypes.MemoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return r.client.Set(ctx, r.fullKey(key), raw, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) (swarmtypes.MemoryEntry, bool, error) {
	raw, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err == redis.Nil {
		return swarmtypes.MemoryEntry{}, false, nil
	}
	if err != nil {
		return swarmtypes.MemoryEntry{}, false, err
	}
	var entry swarmtypes.MemoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return swarmtypes.MemoryEntry{}, false, err
	}
	return entry, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.fullKey(key)).Err()
}

// SweepExpired is a no-op: Redis expires keys on its own schedule.
func (r *RedisStore) SweepExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
