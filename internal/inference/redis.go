package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sb-diagnostic-server/internal/domain"
)

// RedisCache is the shared prediction cache tier.
type RedisCache struct {
	redis *redis.Client
}

// NewRedisCache connects to the configured Redis server.
func NewRedisCache(ctx context.Context, cfg *domain.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{redis: client}, nil
}

// Get returns a cached outcome. Corrupt entries are dropped and reported
// as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (*domain.PredictionOutcome, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached prediction: %w", err)
	}

	var outcome domain.PredictionOutcome
	if err := json.Unmarshal(val, &outcome); err != nil || !outcome.Diagnosis.Valid() {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return &outcome, true, nil
}

// Set stores an outcome with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, outcome *domain.PredictionOutcome, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
