// Package rediscache is a redis/go-redis/v9-backed implementation of
// cache.Cache for deployments running more than one opsbrief process that
// need to share a warm cache. The tiered TTL contract is identical to
// cache.Tiered; only the storage backend differs.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantops/opsbrief/cache"
	"github.com/plantops/opsbrief/opsmodel"
)

// Cache is a cache.Cache backed by a single Redis keyspace, prefixed so
// multiple opsbrief deployments can share a cluster without collision.
type Cache struct {
	rdb    *redis.Client
	prefix string

	hitsKey, missesKey, invalidationsKey string
}

// New wraps an already-configured *redis.Client. prefix namespaces every
// key this cache writes (e.g. "opsbrief:cache:").
func New(rdb *redis.Client, prefix string) *Cache {
	return &Cache{
		rdb: rdb, prefix: prefix,
		hitsKey: prefix + "stats:hits", missesKey: prefix + "stats:misses",
		invalidationsKey: prefix + "stats:invalidations",
	}
}

var _ cache.Cache = (*Cache)(nil)

type storedEntry struct {
	Result opsmodel.ToolResult `json:"result"`
	Tier   cache.Tier          `json:"tier"`
}

func (c *Cache) dataKey(key string) string { return c.prefix + "entry:" + key }

func (c *Cache) Get(ctx context.Context, key string) (opsmodel.ToolResult, bool, error) {
	raw, err := c.rdb.Get(ctx, c.dataKey(key)).Bytes()
	if err == redis.Nil {
		c.rdb.Incr(ctx, c.missesKey)
		return opsmodel.ToolResult{}, false, nil
	}
	if err != nil {
		return opsmodel.ToolResult{}, false, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	var entry storedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return opsmodel.ToolResult{}, false, fmt.Errorf("rediscache: decode %s: %w", key, err)
	}
	c.rdb.Incr(ctx, c.hitsKey)

	now := time.Now().UTC()
	entry.Result.Metadata.CachedAt = &now
	entry.Result.Metadata.CacheTier = string(entry.Tier)
	return entry.Result, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, tier cache.Tier, result opsmodel.ToolResult) error {
	if tier == cache.TierNone {
		return nil
	}
	raw, err := json.Marshal(storedEntry{Result: result, Tier: tier})
	if err != nil {
		return fmt.Errorf("rediscache: encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, c.dataKey(key), raw, cache.DefaultTTL(tier)).Err()
}

// Invalidate supports the "all" selector directly (a prefix scan + delete);
// tier/tool/glob selectors require scanning the keyspace, since Redis keys
// carry no side index of their tier or tool name by default.
func (c *Cache) Invalidate(ctx context.Context, sel cache.Selector) (int, error) {
	pattern := c.dataKey("*")
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("rediscache: scan: %w", err)
		}
		for _, k := range keys {
			if sel.All {
				if err := c.rdb.Del(ctx, k).Err(); err == nil {
					removed++
				}
				continue
			}
			raw, err := c.rdb.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			var entry storedEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if matchesSelector(sel, c.cacheKey(k), entry) {
				if err := c.rdb.Del(ctx, k).Err(); err == nil {
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if removed > 0 {
		c.rdb.Incr(ctx, c.invalidationsKey)
	}
	return removed, nil
}

// cacheKey strips the Redis namespace prefix back off a scanned key so
// selector matching sees the same "<tool>:<user>:<hash>" shape BuildKey
// produced.
func (c *Cache) cacheKey(redisKey string) string {
	return strings.TrimPrefix(redisKey, c.prefix+"entry:")
}

func matchesSelector(sel cache.Selector, key string, entry storedEntry) bool {
	if sel.Tier != "" && entry.Tier == sel.Tier {
		return true
	}
	parts := strings.Split(key, ":")
	if sel.ToolName != "" && parts[0] == sel.ToolName {
		return true
	}
	if sel.Glob != "" {
		tail := parts[len(parts)-1]
		if ok, _ := path.Match(sel.Glob, tail); ok {
			return true
		}
	}
	return false
}

func (c *Cache) Stats() cache.Stats {
	ctx := context.Background()
	hits, _ := c.rdb.Get(ctx, c.hitsKey).Int64()
	misses, _ := c.rdb.Get(ctx, c.missesKey).Int64()
	invalidations, _ := c.rdb.Get(ctx, c.invalidationsKey).Int64()
	return cache.Stats{Hits: hits, Misses: misses, Invalidations: invalidations, EntriesByTier: map[cache.Tier]int{}}
}
