package resolver

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a resolved profile is reused.
const DefaultCacheTTL = 10 * time.Minute

// Cache stores resolved profiles by username. Only found profiles are cached.
type Cache interface {
	// Get returns the cached profile, or false if absent or expired.
	Get(ctx context.Context, username string) (Profile, bool, error)
	Put(ctx context.Context, username string, p Profile) error
	Invalidate(ctx context.Context, username string) error
}

// cacheKey normalizes usernames, which are case-insensitive in the directory.
func cacheKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache. A non-positive ttl uses DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, username string) (Profile, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(username)]
	if !ok {
		return Profile{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		return Profile{}, false, nil
	}
	return entry.profile, true, nil
}

func (c *MemoryCache) Put(_ context.Context, username string, p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[cacheKey(username)] = &cacheEntry{
		profile:   p,
		expiresAt: now.Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, cacheKey(username))
	return nil
}
