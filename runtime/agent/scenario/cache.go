package scenario

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores predictions keyed by fingerprint. TTL eviction is the
// caller's responsibility (Predictor checks CreatedAt against
// Config.CacheDuration on every Get); Cache implementations only need to
// return what they have, stale or not.
type Cache interface {
	Get(fingerprint string) (Prediction, bool)
	Set(fingerprint string, p Prediction)
	// Snapshot returns every cached prediction keyed by fingerprint, for the
	// planner API's read-only ScenarioCache() accessor (§6.4).
	Snapshot() map[string]Prediction
}

// MemCache is the default, in-process Cache: a mutex-guarded map. This is
// the only cache exercised when no Redis endpoint is configured, matching
// §5's task-local cache model.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]Prediction
}

// NewMemCache constructs an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]Prediction)}
}

// Get returns the cached prediction, if any.
func (c *MemCache) Get(fingerprint string) (Prediction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[fingerprint]
	return p, ok
}

// Set stores a prediction, replacing any previous entry for the same
// fingerprint.
func (c *MemCache) Set(fingerprint string, p Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = p
}

// Snapshot returns a shallow copy of every cached prediction.
func (c *MemCache) Snapshot() map[string]Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Prediction, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// RedisCache backs the scenario-prediction cache with Redis, for planner
// deployments that want the cache to survive a single process's restarts
// within the deployment's own retention policy (the planner's own rich
// memory remains process-local regardless; see SPEC_FULL.md §1B). Values
// are JSON-encoded and stored with the configured TTL as the key's
// expiration, so stale entries are reclaimed by Redis itself rather than
// by Predictor's CreatedAt check alone.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache constructs a Cache backed by the given Redis client. ttl
// should match Config.CacheDuration.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "scenario:"}
}

// Get fetches and decodes the cached prediction, if present and not
// expired server-side.
func (c *RedisCache) Get(fingerprint string) (Prediction, bool) {
	ctx := context.Background()
	raw, err := c.client.Get(ctx, c.prefix+fingerprint).Bytes()
	if err != nil {
		return Prediction{}, false
	}
	var pred Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return Prediction{}, false
	}
	return pred, true
}

// Set encodes and stores the prediction with the configured TTL.
func (c *RedisCache) Set(fingerprint string, p Prediction) {
	ctx := context.Background()
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+fingerprint, raw, c.ttl)
}

// Snapshot scans every key under this cache's prefix and decodes it. Best
// effort: keys that expire or fail to decode mid-scan are skipped rather
// than failing the whole snapshot.
func (c *RedisCache) Snapshot() map[string]Prediction {
	ctx := context.Background()
	out := make(map[string]Prediction)
	keys, err := c.client.Keys(ctx, c.prefix+"*").Result()
	if err != nil {
		return out
	}
	for _, key := range keys {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var pred Prediction
		if err := json.Unmarshal(raw, &pred); err != nil {
			continue
		}
		out[strings.TrimPrefix(key, c.prefix)] = pred
	}
	return out
}
