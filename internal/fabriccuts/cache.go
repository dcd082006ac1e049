package fabriccuts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps fabric cut lookups in Redis. Scanning stations hit the lookup
// endpoint repeatedly for the same numbers, so reads are cached and every
// mutation invalidates the number's entry.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs the cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(fabricNumber string) string {
	return "fabriccut:" + fabricNumber
}

// Get returns a cached cut when present.
func (c *Cache) Get(ctx context.Context, fabricNumber string) (FabricCut, bool) {
	if c == nil || c.client == nil {
		return FabricCut{}, false
	}
	data, err := c.client.Get(ctx, cacheKey(fabricNumber)).Bytes()
	if err != nil {
		return FabricCut{}, false
	}
	var cut FabricCut
	if err := json.Unmarshal(data, &cut); err != nil {
		return FabricCut{}, false
	}
	return cut, true
}

// Set stores a cut under its fabric number.
func (c *Cache) Set(ctx context.Context, cut FabricCut) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(cut)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(cut.FabricNumber), data, c.ttl).Err()
}

// Invalidate drops the entry for a fabric number.
func (c *Cache) Invalidate(ctx context.Context, fabricNumber string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, cacheKey(fabricNumber)).Err()
}
