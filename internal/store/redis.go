package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/me/alm/internal/logging"
)

// DefaultRedisPrefix namespaces the session keys in a shared Redis.
const DefaultRedisPrefix = "alm:"

// RedisStore implements KV on Redis, so several machines can share one
// session. Keys never expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to the Redis at redisURL and pings it.
func NewRedisStore(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rs := &RedisStore{
		client: redis.NewClient(opts),
		prefix: DefaultRedisPrefix,
		logger: logging.Component(logger, "store"),
	}
	if err := rs.client.Ping(ctx).Err(); err != nil {
		rs.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rs, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	r.logger.Debug("redis", "op", "get", "key", key)

	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	r.logger.Debug("redis", "op", "set", "key", key)

	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMulti writes values with a single MSET, which Redis applies atomically.
func (r *RedisStore) SetMulti(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	r.logger.Debug("redis", "op", "mset", "keys", len(values))

	pairs := make([]any, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, r.key(k), v)
	}
	if err := r.client.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("mset: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	r.logger.Debug("redis", "op", "del", "keys", keys)

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
