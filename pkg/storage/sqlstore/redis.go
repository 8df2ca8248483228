package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/storage"
)

// RedisCache is a read-through cache in front of a store. Revisions never
// change once saved, so they are cached until the TTL expires; the history
// list is dropped on every save.
type RedisCache struct {
	storage.Store
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewRedisClient connects to Redis with the configured options
func NewRedisClient(ctx context.Context, cfg storage.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps store with a cache on client
func NewRedisCache(store storage.Store, client *redis.Client, ttl time.Duration, logger *observability.Logger) *RedisCache {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RedisCache{
		Store:  store,
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "redis_cache"),
	}
}

// Client returns the Redis client, for health checks
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func revisionsKey(history string) string {
	return fmt.Sprintf("apievolve:revisions:%s", history)
}

func revisionKey(history string, revision int) string {
	return fmt.Sprintf("apievolve:revision:%s:%d", history, revision)
}

const historiesKey = "apievolve:histories"

// get reads a cached JSON value. Misses and broken entries return false.
func (c *RedisCache) get(ctx context.Context, key string, v any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	} else if err != nil {
		c.logger.WithError(err).Warnf("redis get %s failed", key)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.client.Del(ctx, key)
		return false
	}
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warnf("redis set %s failed", key)
	}
}

// SaveRevision stores the revision and drops the cached lists it changes
func (c *RedisCache) SaveRevision(ctx context.Context, record *storage.Record) error {
	if err := c.Store.SaveRevision(ctx, record); err != nil {
		return err
	}
	if err := c.client.Del(ctx, revisionsKey(record.History), historiesKey).Err(); err != nil {
		c.logger.WithError(err).Warn("redis invalidation failed")
	}
	return nil
}

// GetRevision reads through the cache
func (c *RedisCache) GetRevision(ctx context.Context, history string, revision int) (*storage.Record, error) {
	var record storage.Record
	if c.get(ctx, revisionKey(history, revision), &record) {
		return &record, nil
	}
	r, err := c.Store.GetRevision(ctx, history, revision)
	if err != nil {
		return nil, err
	}
	c.set(ctx, revisionKey(history, revision), r)
	return r, nil
}

// ListRevisions reads through the cache
func (c *RedisCache) ListRevisions(ctx context.Context, history string) ([]*storage.Record, error) {
	var records []*storage.Record
	if c.get(ctx, revisionsKey(history), &records) {
		return records, nil
	}
	records, err := c.Store.ListRevisions(ctx, history)
	if err != nil {
		return nil, err
	}
	c.set(ctx, revisionsKey(history), records)
	return records, nil
}

// ListHistories reads through the cache
func (c *RedisCache) ListHistories(ctx context.Context) ([]string, error) {
	var histories []string
	if c.get(ctx, historiesKey, &histories) {
		return histories, nil
	}
	histories, err := c.Store.ListHistories(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, historiesKey, histories)
	return histories, nil
}

// Invalidate drops everything cached for a history
func (c *RedisCache) Invalidate(ctx context.Context, history string) error {
	keys := []string{revisionsKey(history), historiesKey}
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("apievolve:revision:%s:*", history), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for history %s: %w", history, err)
	}
	return c.client.Del(ctx, keys...).Err()
}

// HealthCheck checks Redis and the wrapped store
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	return c.Store.HealthCheck(ctx)
}

// Close closes the Redis client and the wrapped store
func (c *RedisCache) Close() error {
	return errors.Join(c.client.Close(), c.Store.Close())
}
