// ABOUTME: Redis-backed heartbeat store using per-key TTLs.
// ABOUTME: Records live under a namespace prefix; bulk clear scans and deletes the prefix.

package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. The key TTL is the liveness clock:
// an expired key reads as absent, which is exactly the staleness signal.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a Redis client. The namespace keeps multiple isolated
// deployments on one Redis instance from clearing each other's records.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	prefix := "heartbeat:"
	if namespace != "" {
		prefix = namespace + ":heartbeat:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordKey(identityID string) string {
	return s.prefix + "id:" + identityID
}

func (s *RedisStore) generationKey() string {
	return s.prefix + "generation"
}

// Beat writes the record with the given TTL.
func (s *RedisStore) Beat(ctx context.Context, identityID string, ttl time.Duration) error {
	now := time.Now().UTC()
	if err := s.client.Set(ctx, s.recordKey(identityID), now.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("writing heartbeat for %s: %w", identityID, err)
	}
	return nil
}

// LastSeen reads the record; an expired or missing key reads as absent.
func (s *RedisStore) LastSeen(ctx context.Context, identityID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.recordKey(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading heartbeat for %s: %w", identityID, err)
	}

	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing heartbeat for %s: %w", identityID, err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

// Alive reports whether a fresh record exists.
func (s *RedisStore) Alive(ctx context.Context, identityID string) (bool, error) {
	_, ok, err := s.LastSeen(ctx, identityID)
	return ok, err
}

// ClearAll deletes every heartbeat record in the namespace. The generation
// counter is kept under a separate key and survives.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"id:*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clearing heartbeats: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning heartbeats: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("clearing heartbeats: %w", err)
		}
	}
	return nil
}

// Generation returns the current reset generation (0 when never bumped).
func (s *RedisStore) Generation(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, s.generationKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading generation: %w", err)
	}

	gen, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing generation: %w", err)
	}
	return gen, nil
}

// BumpGeneration atomically increments the reset generation.
func (s *RedisStore) BumpGeneration(ctx context.Context) (int64, error) {
	gen, err := s.client.Incr(ctx, s.generationKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("bumping generation: %w", err)
	}
	return gen, nil
}
