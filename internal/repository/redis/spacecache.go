package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	spaceCachePrefix = "supervisor_space:"
	spaceCacheTTL    = 15 * time.Minute
)

// SpaceCache caches supervisor-space lookups per adviser email. Enrolment
// rarely changes, so a short TTL keeps the hot path off the users table.
type SpaceCache struct {
	client *Client
}

// NewSpaceCache creates a new supervisor-space cache
func NewSpaceCache(client *Client) *SpaceCache {
	return &SpaceCache{client: client}
}

// Get retrieves the cached supervisor space for an adviser; ok is false on a
// cache miss.
func (c *SpaceCache) Get(ctx context.Context, email string) (string, bool) {
	space, err := c.client.rdb.Get(ctx, spaceCachePrefix+email).Result()
	if err == redis.Nil || err != nil {
		return "", false
	}
	return space, true
}

// Set caches the supervisor space for an adviser
func (c *SpaceCache) Set(ctx context.Context, email, spaceID string) error {
	return c.client.rdb.Set(ctx, spaceCachePrefix+email, spaceID, spaceCacheTTL).Err()
}

// Invalidate removes the cached entry for an adviser
func (c *SpaceCache) Invalidate(ctx context.Context, email string) error {
	return c.client.rdb.Del(ctx, spaceCachePrefix+email).Err()
}
