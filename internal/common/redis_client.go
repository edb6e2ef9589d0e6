package common

import (
	"context"
	"time"

	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/logging"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from the cache config. A failed ping is
// logged and the client still returned; the pool reconnects on demand.
func NewRedisClient(cfg config.CacheConfig) *redis.Client {
	logging.Info("Initializing Redis client", "addr", cfg.RedisAddr, "db", cfg.RedisDB)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.Error("Failed to ping Redis", "addr", cfg.RedisAddr, "error", err)
		return client
	}

	logging.Info("Connected to Redis", "addr", cfg.RedisAddr)
	return client
}

// NewCache picks the cooldown/snapshot cache for the configured backend.
func NewCache(cfg config.CacheConfig) CacheInterface {
	if cfg.Backend == "redis" {
		return NewRedisCacheService(NewRedisClient(cfg), "guildbot:")
	}
	return NewCacheService(5*time.Minute, time.Minute)
}
