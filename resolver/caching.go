package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// CachingResolver serves repeated username lookups from a Cache.
// Failed lookups are never cached, and Profile always reaches the directory.
type CachingResolver struct {
	next   Resolver
	cache  Cache
	logger *slog.Logger
}

// NewCachingResolver wraps next with cache.
func NewCachingResolver(next Resolver, cache Cache, logger *slog.Logger) *CachingResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingResolver{
		next:   next,
		cache:  cache,
		logger: logger.With("component", "resolver"),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, username string) (Profile, error) {
	p, ok, err := r.cache.Get(ctx, username)
	if err != nil {
		r.logger.Warn("resolver_cache_get_failed", "username", username, "error", err)
	} else if ok {
		return p, nil
	}

	p, err = r.next.Resolve(ctx, username)
	if err != nil {
		return Profile{}, err
	}

	if err := r.cache.Put(ctx, username, p); err != nil {
		r.logger.Warn("resolver_cache_put_failed", "username", username, "error", err)
	}
	return p, nil
}

func (r *CachingResolver) Profile(ctx context.Context, uuid string) (Profile, error) {
	return r.next.Profile(ctx, uuid)
}

// Forget drops the cached lookup for username.
func (r *CachingResolver) Forget(ctx context.Context, username string) error {
	return r.cache.Invalidate(ctx, username)
}

// CacheConfig selects the lookup cache.
type CacheConfig struct {
	// Type is "none", "memory", "kv" or "redis". Empty means "none".
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// TTL as a duration string (e.g. "10m"). Default: "10m".
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// Bucket is the JetStream KV bucket for type "kv".
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// RedisURL is the redis:// URL for type "redis".
	RedisURL string `json:"redisUrl,omitempty" yaml:"redisUrl,omitempty"`
}

// GetTTL returns the TTL as a time.Duration, defaulting to DefaultCacheTTL.
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return DefaultCacheTTL
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return DefaultCacheTTL
	}
	return d
}

// Config configures the resolver chain built by New.
type Config struct {
	MojangConfig `yaml:",inline"`

	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// Validate checks the cache settings.
func (c *Config) Validate() error {
	if c.Cache.Type == "" {
		c.Cache.Type = "none"
	}
	switch c.Cache.Type {
	case "none", "memory", "kv":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("resolver.cache.redisUrl is required when type is 'redis'")
		}
	default:
		return fmt.Errorf("unsupported resolver cache type: %s", c.Cache.Type)
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("resolver.timeout: %w", err)
		}
	}
	return nil
}

// New builds a MojangResolver wrapped in the configured cache.
// js is only needed for the "kv" cache. The returned close function releases cache connections.
func New(ctx context.Context, cfg Config, js jetstream.JetStream, logger *slog.Logger) (Resolver, func() error, error) {
	noop := func() error { return nil }

	mojang, err := NewMojangResolver(cfg.MojangConfig)
	if err != nil {
		return nil, noop, err
	}

	ttl := cfg.Cache.GetTTL()
	switch cfg.Cache.Type {
	case "", "none":
		return mojang, noop, nil
	case "memory":
		return NewCachingResolver(mojang, NewMemoryCache(ttl), logger), noop, nil
	case "kv":
		if js == nil {
			return nil, noop, fmt.Errorf("kv resolver cache requires a JetStream context")
		}
		kv, err := NewKVCache(ctx, js, cfg.Cache.Bucket, ttl)
		if err != nil {
			return nil, noop, err
		}
		return NewCachingResolver(mojang, kv, logger), noop, nil
	case "redis":
		rdb, err := NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		rc := NewRedisCache(rdb, ttl)
		return NewCachingResolver(mojang, rc, logger), rc.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported resolver cache type: %s", cfg.Cache.Type)
	}
}
