package tomikal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPrefix = "tomikal:session:"

// RedisStore keeps the session entries as plain keys under a prefix.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &RedisStore{rdb: rdb, prefix: prefix}
}

// OpenRedisStore connects to redisUrl and makes sure the server answers.
func OpenRedisStore(ctx context.Context, redisUrl string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("unable to reach redis: %w", err)
	}

	log.Println("[SESSION] redis connection established")

	return NewRedisStore(rdb, ""), rdb, nil
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("unable to get %s from redis: %w", key, err)
	}

	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("unable to set %s in redis: %w", key, err)
	}

	return nil
}

// Delete issues a single DEL for every key.
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, r.key(key))
	}

	if err := r.rdb.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("unable to delete session from redis: %w", err)
	}

	return nil
}
