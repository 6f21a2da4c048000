package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultKVBucket is the JetStream KV bucket used by KVCache.
const DefaultKVBucket = "mcaccounts_usernames"

// KVCache stores profiles in a JetStream key-value bucket so every replica shares lookups.
// Expiry is delegated to the bucket's TTL.
type KVCache struct {
	kv jetstream.KeyValue
}

// NewKVCache creates or updates the bucket and returns a cache backed by it.
func NewKVCache(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVCache, error) {
	if bucket == "" {
		bucket = DefaultKVBucket
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "minecraft username to profile cache",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("binding to KV bucket %q: %w", bucket, err)
	}
	return &KVCache{kv: kv}, nil
}

// kvKey prefixes the username so keys stay within the KV key alphabet.
func kvKey(username string) string {
	return "username." + cacheKey(username)
}

func (c *KVCache) Get(ctx context.Context, username string) (Profile, bool, error) {
	entry, err := c.kv.Get(ctx, kvKey(username))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Profile{}, false, nil
		}
		return Profile{}, false, fmt.Errorf("getting %s from KV: %w", username, err)
	}

	var p Profile
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return Profile{}, false, fmt.Errorf("parsing cached profile for %s: %w", username, err)
	}
	return p, true, nil
}

func (c *KVCache) Put(ctx context.Context, username string, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if _, err := c.kv.Put(ctx, kvKey(username), data); err != nil {
		return fmt.Errorf("storing %s in KV: %w", username, err)
	}
	return nil
}

func (c *KVCache) Invalidate(ctx context.Context, username string) error {
	if err := c.kv.Delete(ctx, kvKey(username)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s from KV: %w", username, err)
	}
	return nil
}
