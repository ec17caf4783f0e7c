// Package cache manages the Redis client lifecycle. The same client backs
// the H3 cell cache, the POI hydration cache, and the per-user route cache.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minh/wayloop/config"
)

// NewRedisClient creates a Redis client and verifies connectivity.
// The client is a process-wide singleton owned by main.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Printf("[cache] connected to redis at %s (db=%d)", cfg.Addr(), cfg.DB)
	return client, nil
}

// HealthCheck verifies the client can reach Redis.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
