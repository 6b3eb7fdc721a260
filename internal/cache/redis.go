package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis. A server running with
// maxmemory and the noeviction policy rejects writes with an OOM error,
// which is reported as ErrQuotaExceeded.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type RedisConfig struct {
	Prefix string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: config.Prefix,
	}
}

// key builds the final Redis key with prefix.
func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get retrieves a value. On Redis error it returns ("", false, err) so the
// caller can log and treat it as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("context error: %w", err)
	}

	res, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}

	return res, true, nil
}

// Set stores a value without expiry; freshness is judged by the entry timestamp.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("redis set failed: %w", ErrQuotaExceeded)
		}
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Remove deletes a key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

// Keys lists every key under the store prefix, with the prefix stripped.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	pattern := "*"
	if s.prefix != "" {
		pattern = s.prefix + ":*"
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if s.prefix != "" {
			k = strings.TrimPrefix(k, s.prefix+":")
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return keys, nil
}

// Ping checks if Redis connection is healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Ping(ctx).Err()
}

// isOOM matches "OOM command not allowed when used memory > 'maxmemory'".
func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}
