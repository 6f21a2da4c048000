package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mcaccounts:username:"

// RedisCache stores profiles in Redis with a per-key expiry.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient parses a redis:// URL, tunes the pool and verifies the connection.
func NewRedisClient(ctx context.Context, dsn string) (*redis.Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.ConnMaxLifetime = 30 * time.Minute

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, username string) (Profile, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+cacheKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Profile{}, false, nil
		}
		return Profile{}, false, fmt.Errorf("getting %s from redis: %w", username, err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false, fmt.Errorf("parsing cached profile for %s: %w", username, err)
	}
	return p, true, nil
}

func (c *RedisCache) Put(ctx context.Context, username string, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+cacheKey(username), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing %s in redis: %w", username, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, redisKeyPrefix+cacheKey(username)).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
