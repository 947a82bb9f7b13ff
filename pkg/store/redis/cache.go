// Package redis caches catalog reads in Redis in front of a durable catalog.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
)

const (
	keyPrefix = "lambdanodes:node:"
	listKey   = "lambdanodes:nodes:all"
	indexSet  = "lambdanodes:nodes:keys"
)

// CachedCatalog is a read-through cache around a backing catalog. Writes go
// to the backing catalog first and invalidate the affected keys. Any Redis
// failure is logged and the backing catalog answers instead.
type CachedCatalog struct {
	client  *redis.Client
	backing catalog.Catalog
	ttl     time.Duration
}

// NewCachedCatalog wraps backing. A zero ttl keeps entries until invalidated.
func NewCachedCatalog(client *redis.Client, backing catalog.Catalog, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{client: client, backing: backing, ttl: ttl}
}

func (c *CachedCatalog) makeKey(id string) string {
	return keyPrefix + id
}

func (c *CachedCatalog) Get(ctx context.Context, id string) (catalog.NodeDefinition, error) {
	key := c.makeKey(id)

	var def catalog.NodeDefinition
	if c.load(ctx, key, &def) {
		return def, nil
	}

	def, err := c.backing.Get(ctx, id)
	if err != nil {
		return catalog.NodeDefinition{}, err
	}
	c.store(ctx, key, def)
	return def, nil
}

func (c *CachedCatalog) List(ctx context.Context) ([]catalog.NodeDefinition, error) {
	var defs []catalog.NodeDefinition
	if c.load(ctx, listKey, &defs) {
		return defs, nil
	}

	defs, err := c.backing.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listKey, defs)
	return defs, nil
}

func (c *CachedCatalog) Create(ctx context.Context, d catalog.Draft) (catalog.NodeDefinition, error) {
	def, err := c.backing.Create(ctx, d)
	if err != nil {
		return catalog.NodeDefinition{}, err
	}
	c.invalidate(ctx, listKey)
	return def, nil
}

func (c *CachedCatalog) Update(ctx context.Context, id string, d catalog.Draft) (catalog.NodeDefinition, error) {
	def, err := c.backing.Update(ctx, id, d)
	if err != nil {
		return catalog.NodeDefinition{}, err
	}
	c.invalidate(ctx, c.makeKey(id), listKey)
	return def, nil
}

func (c *CachedCatalog) Delete(ctx context.Context, id string) error {
	if err := c.backing.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, c.makeKey(id), listKey)
	return nil
}

// SeedInternal seeds the backing catalog and drops every cached entry.
func (c *CachedCatalog) SeedInternal(ctx context.Context, drafts []catalog.Draft) ([]catalog.NodeDefinition, error) {
	seeder, ok := c.backing.(catalog.Seeder)
	if !ok {
		return nil, fmt.Errorf("backing catalog %T cannot seed internal nodes", c.backing)
	}
	defs, err := seeder.SeedInternal(ctx, drafts)
	if err != nil {
		return nil, err
	}
	c.Clear(ctx)
	return defs, nil
}

// Clear removes every key this cache wrote.
func (c *CachedCatalog) Clear(ctx context.Context) {
	keys, err := c.client.SMembers(ctx, indexSet).Result()
	if err != nil {
		slog.Warn("redis_smembers_failed", "key", indexSet, "error", err)
		return
	}
	keys = append(keys, indexSet)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("redis_del_failed", "keys", len(keys), "error", err)
	}
}

func (c *CachedCatalog) load(ctx context.Context, key string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis_get_failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("redis_decode_failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedCatalog) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("redis_encode_failed", "key", key, "error", err)
		return
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, indexSet, key)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis_set_failed", "key", key, "error", err)
	}
}

func (c *CachedCatalog) invalidate(ctx context.Context, keys ...string) {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, indexSet, toAny(keys)...)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis_invalidate_failed", "keys", keys, "error", err)
	}
}

func toAny(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
