package common

import (
	"context"
	"encoding/json"
	"time"

	"crenors/guildbot/internal/logging"

	"github.com/redis/go-redis/v9"
)

// RedisCacheService implements CacheInterface using Redis so several bot
// processes share cooldowns. Values round-trip through JSON, so Get returns
// generic JSON types (numbers come back as float64).
type RedisCacheService struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// Ensure RedisCacheService implements CacheInterface
var _ CacheInterface = (*RedisCacheService)(nil)

// NewRedisCacheService namespaces every key under prefix
func NewRedisCacheService(client *redis.Client, prefix string) *RedisCacheService {
	return &RedisCacheService{client: client, prefix: prefix, timeout: 2 * time.Second}
}

func (r *RedisCacheService) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *RedisCacheService) Set(key string, value interface{}, duration time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Warn("Redis cache: failed to marshal value", "key", key, "error", err)
		return
	}

	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, data, duration).Err(); err != nil {
		logging.Warn("Redis cache: failed to set key", "key", key, "error", err)
	}
}

// Add uses SET NX PX. When Redis is unreachable the value is treated as
// stored so callers fail open.
func (r *RedisCacheService) Add(key string, value interface{}, duration time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Warn("Redis cache: failed to marshal value", "key", key, "error", err)
		return true
	}

	ctx, cancel := r.ctx()
	defer cancel()
	ok, err := r.client.SetNX(ctx, r.prefix+key, data, duration).Result()
	if err != nil {
		logging.Warn("Redis cache: SETNX failed", "key", key, "error", err)
		return true
	}
	return ok
}

func (r *RedisCacheService) Get(key string) (interface{}, bool) {
	ctx, cancel := r.ctx()
	defer cancel()
	data, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis cache: failed to get key", "key", key, "error", err)
		return nil, false
	}

	var result interface{}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		logging.Warn("Redis cache: failed to unmarshal value", "key", key, "error", err)
		return nil, false
	}
	return result, true
}

func (r *RedisCacheService) Delete(key string) {
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		logging.Warn("Redis cache: failed to delete key", "key", key, "error", err)
	}
}

func (r *RedisCacheService) GetOrSet(
	key string,
	duration time.Duration,
	loader func() (any, error),
) (interface{}, error) {
	if val, found := r.Get(key); found {
		return val, nil
	}

	val, err := loader()
	if err != nil {
		return nil, err
	}

	r.Set(key, val, duration)
	return val, nil
}

func (r *RedisCacheService) Ping() error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisCacheService) Close() error {
	return r.client.Close()
}
