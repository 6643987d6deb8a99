package route

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

// Cache stores successful route results keyed by their waypoint list.
type Cache interface {
	Get(ctx context.Context, key string) (models.RouteResult, bool)
	Set(ctx context.Context, key string, v models.RouteResult)
}

// MemoryCache is a tiny in-process TTL cache. Expired entries are swept on Set at most once per TTL.
type MemoryCache struct {
	mu        sync.RWMutex
	store     map[string]cacheEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type cacheEntry struct {
	v  models.RouteResult
	ts time.Time
}

// NewMemoryCache creates a cache with the provided TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

// Get returns cached value and true if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (models.RouteResult, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.RouteResult{}, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return models.RouteResult{}, false
	}
	return clonePath(e.v), true
}

func (c *MemoryCache) Set(_ context.Context, key string, v models.RouteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) > c.ttl {
		for k, e := range c.store {
			if now.Sub(e.ts) > c.ttl {
				delete(c.store, k)
			}
		}
		c.lastSweep = now
	}
	c.store[key] = cacheEntry{v: clonePath(v), ts: now}
}

// Len reports how many entries are held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func clonePath(v models.RouteResult) models.RouteResult {
	if v.Path != nil {
		v.Path = append([]models.Coord(nil), v.Path...)
	}
	return v
}

// Key renders waypoints with micro-degree precision, in order.
func Key(waypoints []models.Coord) string {
	parts := make([]string, len(waypoints))
	for i, w := range waypoints {
		parts[i] = fmt.Sprintf("%.6f,%.6f", w.Lat, w.Lon)
	}
	return strings.Join(parts, "->")
}
