// Package plancache memoizes plan comparison results, which are expensive
// for the backend to compute and immutable for a given version pair.
package plancache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ticketops/tickctl/internal/api"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 50
)

// Fetcher is the slice of the backend client the cache needs.
type Fetcher interface {
	ComparePlans(ctx context.Context, jobID string, fromVersion, toVersion int, format api.CompareFormat) (*api.PlanComparison, error)
}

type entry struct {
	comparison *api.PlanComparison
	storedAt   time.Time
}

// Cache is a TTL-bounded comparison cache with a hard entry cap. When the
// cap is exceeded the oldest entry is evicted first.
type Cache struct {
	client Fetcher
	ttl    time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache. Non-positive ttl or max fall back to the defaults.
func New(client Fetcher, ttl time.Duration, max int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		max:     max,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func key(jobID string, fromVersion, toVersion int, format api.CompareFormat) string {
	return fmt.Sprintf("%s:%d:%d:%s", jobID, fromVersion, toVersion, format)
}

// Fetch returns the comparison for the given version pair, consulting the
// cache first. Backend errors are returned as-is and nothing is cached
// for them.
func (c *Cache) Fetch(ctx context.Context, jobID string, fromVersion, toVersion int, format api.CompareFormat) (*api.PlanComparison, error) {
	k := key(jobID, fromVersion, toVersion, format)

	c.mu.Lock()
	c.pruneLocked()
	if e, ok := c.entries[k]; ok {
		c.mu.Unlock()
		return e.comparison, nil
	}
	c.mu.Unlock()

	comparison, err := c.client.ComparePlans(ctx, jobID, fromVersion, toVersion, format)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[k] = entry{comparison: comparison, storedAt: c.now()}
	c.evictLocked()
	c.mu.Unlock()
	return comparison, nil
}

// Delete drops a single cached comparison.
func (c *Cache) Delete(jobID string, fromVersion, toVersion int, format api.CompareFormat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(jobID, fromVersion, toVersion, format))
}

// Clear drops every cached comparison.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Stats describes the cache's current shape.
type Stats struct {
	Size         int
	MaxSize      int
	TTL          time.Duration
	ExpiredCount int
}

// Stats reports the live and expired entry counts without pruning.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	expired := 0
	now := c.now()
	for _, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			expired++
		}
	}
	return Stats{
		Size:         len(c.entries) - expired,
		MaxSize:      c.max,
		TTL:          c.ttl,
		ExpiredCount: expired,
	}
}

// pruneLocked drops entries past their TTL.
func (c *Cache) pruneLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

// evictLocked drops the oldest entries until the cache fits its cap.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.max {
		oldestKey := ""
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}
