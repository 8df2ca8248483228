package sqlstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/apievolve/pkg/storage"
)

// countingStore counts the reads reaching the wrapped store
type countingStore struct {
	storage.Store
	gets, lists, histories int
}

func (c *countingStore) GetRevision(ctx context.Context, history string, revision int) (*storage.Record, error) {
	c.gets++
	return c.Store.GetRevision(ctx, history, revision)
}

func (c *countingStore) ListRevisions(ctx context.Context, history string) ([]*storage.Record, error) {
	c.lists++
	return c.Store.ListRevisions(ctx, history)
}

func (c *countingStore) ListHistories(ctx context.Context) ([]string, error) {
	c.histories++
	return c.Store.ListHistories(ctx)
}

func setupRedisCache(t *testing.T) (*RedisCache, *countingStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)

	backing := &countingStore{Store: newSQLiteStore(t, nil)}
	cache := NewRedisCache(backing, client, cfg.CacheTTL, nil)
	t.Cleanup(func() { client.Close() })
	return cache, backing, mr
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "invalid://url"
	_, err := NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRedisCache_ReadThrough(t *testing.T) {
	cache, backing, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveRevision(ctx, storage.NewRecord("customers", 0, "doc0")))

	for i := 0; i < 3; i++ {
		r, err := cache.GetRevision(ctx, "customers", 0)
		require.NoError(t, err)
		assert.Equal(t, "doc0", r.Document)

		records, err := cache.ListRevisions(ctx, "customers")
		require.NoError(t, err)
		assert.Len(t, records, 1)

		histories, err := cache.ListHistories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"customers"}, histories)
	}
	assert.Equal(t, 1, backing.gets)
	assert.Equal(t, 1, backing.lists)
	assert.Equal(t, 1, backing.histories)
	assert.True(t, mr.Exists(revisionKey("customers", 0)))
}

func TestRedisCache_SaveInvalidatesLists(t *testing.T) {
	cache, backing, _ := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveRevision(ctx, storage.NewRecord("customers", 0, "doc0")))
	_, err := cache.ListRevisions(ctx, "customers")
	require.NoError(t, err)

	require.NoError(t, cache.SaveRevision(ctx, storage.NewRecord("customers", 1, "doc1")))
	records, err := cache.ListRevisions(ctx, "customers")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 2, backing.lists)
}

func TestRedisCache_MissesAreNotCached(t *testing.T) {
	cache, backing, _ := setupRedisCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cache.GetRevision(ctx, "customers", 0)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}
	assert.Equal(t, 2, backing.gets)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	cache, backing, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveRevision(ctx, storage.NewRecord("customers", 0, "doc0")))
	require.NoError(t, mr.Set(revisionKey("customers", 0), "{not json"))

	r, err := cache.GetRevision(ctx, "customers", 0)
	require.NoError(t, err)
	assert.Equal(t, "doc0", r.Document)
	assert.Equal(t, 1, backing.gets)
}

func TestRedisCache_Invalidate(t *testing.T) {
	cache, _, mr := setupRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SaveRevision(ctx, storage.NewRecord("customers", 0, "doc0")))
	_, err := cache.GetRevision(ctx, "customers", 0)
	require.NoError(t, err)
	_, err = cache.ListRevisions(ctx, "customers")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "customers"))
	assert.False(t, mr.Exists(revisionKey("customers", 0)))
	assert.False(t, mr.Exists(revisionsKey("customers")))
}

func TestRedisCache_HealthCheck(t *testing.T) {
	cache, _, mr := setupRedisCache(t)
	assert.NoError(t, cache.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, cache.HealthCheck(context.Background()))
}
