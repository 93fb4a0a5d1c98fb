package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	rediscommon "line-monitor/common/redis"
)

// ErrCacheMiss the key does not exist or expired
var ErrCacheMiss = errors.New("cache miss")

// KVStore the Redis operations the publisher needs (replaced in unit tests)
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	AppendStream(ctx context.Context, stream string, maxLen int64, data interface{}) (string, error)
}

// RedisKVStore go-redis implementation of KVStore
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKVStore) AppendStream(ctx context.Context, stream string, maxLen int64, data interface{}) (string, error) {
	return rediscommon.PublishJSONToStream(ctx, r.client, stream, maxLen, data)
}
