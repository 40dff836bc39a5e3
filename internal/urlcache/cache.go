// Package urlcache keeps an in-memory, capacity-bounded record of recently
// attempted URLs so the orchestrator can skip work inside a cooldown window.
package urlcache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mealdex/recipe-crawler/config"
)

// Entry records the last attempt for a single URL.
type Entry struct {
	URL         string
	LastAttempt time.Time
	Success     bool
}

type BoundedCache struct {
	mu              sync.Mutex
	entries         map[string]Entry
	capacity        int
	successCooldown time.Duration
	failureCooldown time.Duration
	now             func() time.Time
}

func NewBoundedCache(cfg *config.UrlCacheConfig) *BoundedCache {
	return &BoundedCache{
		entries:         make(map[string]Entry, cfg.Capacity),
		capacity:        cfg.Capacity,
		successCooldown: cfg.SuccessCooldown,
		failureCooldown: cfg.FailureCooldown,
		now:             time.Now,
	}
}

// Set records an attempt. Inserting past capacity evicts the oldest 20% of
// entries by last-attempt time before the new entry is added.
func (c *BoundedCache) Set(url string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[url]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[url] = Entry{URL: url, LastAttempt: c.now(), Success: success}
}

func (c *BoundedCache) Get(url string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	return e, ok
}

// ShouldSkip reports whether the URL is still inside its cooldown window.
// Successful attempts cool down longer than failed ones so fresh content is
// not re-fetched while failures stay retryable.
func (c *BoundedCache) ShouldSkip(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return false
	}
	cooldown := c.failureCooldown
	if e.Success {
		cooldown = c.successCooldown
	}
	return c.now().Sub(e.LastAttempt) < cooldown
}

func (c *BoundedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *BoundedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry, c.capacity)
	slog.Info("url cache cleared.")
}

// evictOldest removes the oldest 20% of entries (at least one). Caller holds the lock.
func (c *BoundedCache) evictOldest() {
	all := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastAttempt.Before(all[j].LastAttempt)
	})

	n := len(all) / 5
	if n < 1 {
		n = 1
	}
	for _, e := range all[:n] {
		delete(c.entries, e.URL)
	}
	slog.Debug("evicted oldest url cache entries.", slog.Int("count", n),
		slog.Int("remaining", len(c.entries)))
}
