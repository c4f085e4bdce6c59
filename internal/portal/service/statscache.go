package service

import (
	"sync"
	"time"

	"github.com/westcreek-sd/helpdesk/internal/portal/model"
)

// statsCache holds the last computed dashboard snapshot. Stats queries scan
// the whole tickets table, so the result is reused for a short TTL instead
// of being recomputed on every dashboard poll.
type statsCache struct {
	mu    sync.RWMutex
	stats *model.Stats
	setAt time.Time
	ttl   time.Duration
}

func newStatsCache(ttl time.Duration) *statsCache {
	return &statsCache{ttl: ttl}
}

// get returns the cached snapshot, or nil if empty or expired.
func (c *statsCache) get() *model.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stats == nil || time.Since(c.setAt) > c.ttl {
		return nil
	}
	return c.stats
}

// set stores a freshly computed snapshot.
func (c *statsCache) set(s *model.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = s
	c.setAt = time.Now()
}

// invalidate drops the cached snapshot.
func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = nil
}
