package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheDecisionRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	_, found := cache.GetDecision(ctx, 1, PermProjectView, EntityProject, 42)
	assert.False(t, found)

	cache.SetDecision(ctx, 1, PermProjectView, EntityProject, 42, true)
	allowed, found := cache.GetDecision(ctx, 1, PermProjectView, EntityProject, 42)
	require.True(t, found)
	assert.True(t, allowed)

	cache.SetDecision(ctx, 1, PermProjectEdit, EntityProject, 42, false)
	allowed, found = cache.GetDecision(ctx, 1, PermProjectEdit, EntityProject, 42)
	require.True(t, found)
	assert.False(t, allowed, "denials are cached too")
}

func TestCacheBumpInvalidatesAllDecisions(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	cache.SetDecision(ctx, 1, PermProjectView, EntityProject, 42, true)
	cache.SetDecision(ctx, 2, PermOrgView, EntityOrganization, 7, true)

	require.NoError(t, cache.Bump(ctx))

	_, found := cache.GetDecision(ctx, 1, PermProjectView, EntityProject, 42)
	assert.False(t, found)
	_, found = cache.GetDecision(ctx, 2, PermOrgView, EntityOrganization, 7)
	assert.False(t, found)
}

func TestCacheVersionInitialisesOnce(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(t)

	v1, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)

	v2, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	require.NoError(t, cache.Bump(ctx))
	v3, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v3)
}

func TestCacheNilSafe(t *testing.T) {
	ctx := context.Background()
	var cache *Cache

	_, found := cache.GetDecision(ctx, 1, PermProjectView, EntityProject, 1)
	assert.False(t, found)
	cache.SetDecision(ctx, 1, PermProjectView, EntityProject, 1, true)
	assert.NoError(t, cache.Bump(ctx))

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, ver)
}
