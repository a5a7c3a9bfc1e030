package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// The process-wide cache holds transcript-absent markers, never statistics:
// counts must always come from the platform. L1 is a bounded in-memory map,
// L2 is an optional Redis that survives restarts and is shared by replicas.
var markers *markerCache

var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

type markerCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	limit   int
	ttl     time.Duration
	rdb     *redis.Client
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InitCache installs the process cache. An empty redisURL keeps it memory-only;
// an unreachable Redis is logged and skipped.
func InitCache(redisURL string, ttl time.Duration, maxEntries int, sweepEvery time.Duration) {
	c := &markerCache{
		entries: make(map[string]cacheEntry),
		limit:   maxEntries,
		ttl:     ttl,
		rdb:     dialRedis(redisURL),
	}
	markers = c
	slog.Info("cache: ready",
		slog.Duration("ttl", ttl),
		slog.Int("max_entries", maxEntries),
		slog.Bool("redis", c.rdb != nil))

	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	go c.sweep(sweepEvery)
}

func dialRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("cache: bad REDIS_URL, running memory-only", slog.Any("error", err))
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, running memory-only", slog.String("addr", opts.Addr), slog.Any("error", err))
		rdb.Close()
		return nil
	}
	slog.Info("cache: redis connected", slog.String("addr", opts.Addr))
	return rdb
}

// CacheKey hashes parts into a fixed-length key under the yt: namespace.
func CacheKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "yt:" + hex.EncodeToString(sum[:12])
}

// CacheGet reads L1, then L2. An L2 hit is copied into L1 with the TTL
// Redis still has left, so both tiers expire together.
func CacheGet(ctx context.Context, key string) ([]byte, bool) {
	c := markers
	if c == nil {
		cacheMisses.Add(1)
		return nil, false
	}
	if data, ok := c.local(key); ok {
		cacheHits.Add(1)
		return data, true
	}
	if data, left, ok := c.remote(ctx, key); ok {
		c.put(key, data, left)
		cacheHits.Add(1)
		return data, true
	}
	cacheMisses.Add(1)
	return nil, false
}

// CacheSet writes key to both tiers. L2 failures are logged at debug level only.
func CacheSet(ctx context.Context, key string, data []byte) {
	c := markers
	if c == nil {
		return
	}
	c.put(key, data, c.ttl)
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Debug("cache: redis set failed", slog.String("key", key), slog.Any("error", err))
	}
}

// CacheDelete removes key from both tiers.
func CacheDelete(ctx context.Context, key string) {
	c := markers
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			slog.Debug("cache: redis del failed", slog.String("key", key), slog.Any("error", err))
		}
	}
}

// CacheLoadJSON decodes a cached T. Undecodable entries count as misses.
func CacheLoadJSON[T any](ctx context.Context, key string) (T, bool) {
	var out T
	data, ok := CacheGet(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// CacheStoreJSON encodes v and caches it.
func CacheStoreJSON[T any](ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("cache: encode failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	CacheSet(ctx, key, data)
}

// CacheStats returns the hit and miss counters since start.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

func (c *markerCache) local(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.data, true
}

func (c *markerCache) remote(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	if c.rdb == nil {
		return nil, 0, false
	}
	pipe := c.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("cache: redis get failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, 0, false
	}
	data, err := get.Bytes()
	if err != nil {
		return nil, 0, false
	}
	left := ttl.Val()
	if left <= 0 || left > c.ttl {
		left = c.ttl
	}
	return data, left, true
}

// put stores an entry, making room first when the map is at its limit.
func (c *markerCache) put(key string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.limit > 0 && len(c.entries) >= c.limit {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

// evictLocked drops expired entries; if none expired it drops the entry
// closest to expiry, which is the oldest one under a uniform TTL.
func (c *markerCache) evictLocked() {
	now := time.Now()
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	if len(c.entries) >= c.limit && victim != "" {
		delete(c.entries, victim)
	}
}

func (c *markerCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}

func (c *markerCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
