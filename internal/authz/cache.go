package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "authz:version"

// Cache memoizes permission check results in Redis. A version counter is
// bumped whenever grants change, which invalidates every cached decision at
// once without scanning keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates all cached decisions.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// GetDecision looks up a cached permission decision. The second return value
// reports whether a cached entry was found.
func (c *Cache) GetDecision(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (bool, bool) {
	if c == nil || c.client == nil {
		return false, false
	}
	key, err := c.key(ctx, userID, permission, entity, resourceID)
	if err != nil {
		return false, false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// SetDecision stores a permission decision.
func (c *Cache) SetDecision(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64, allowed bool) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, userID, permission, entity, resourceID)
	if err != nil {
		return
	}
	val := "0"
	if allowed {
		val = "1"
	}
	_ = c.client.Set(ctx, key, val, c.ttl).Err()
}

func (c *Cache) key(ctx context.Context, userID int64, permission string, entity EntityType, resourceID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("authz:v%d:u%d:%s:%s:%d", ver, userID, permission, entity, resourceID), nil
}
