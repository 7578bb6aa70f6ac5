package reviewer

import (
	"context"
	"sync"
	"time"
)

const CacheTTL = 2 * time.Minute

// Cache remembers the last selection per session.
type Cache interface {
	Get(ctx context.Context, sessionID string) ([]string, bool, error)
	Set(ctx context.Context, sessionID string, ids []string) error
	Invalidate(ctx context.Context, sessionID string) error
}

type memEntry struct {
	at  time.Time
	ids []string
}

// MemoryCache is a process-local Cache with wall-clock expiry.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memEntry)}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(e.at) > c.ttl {
		delete(c.entries, sessionID)
		return nil, false, nil
	}
	return append([]string(nil), e.ids...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, sessionID string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = memEntry{at: c.now(), ids: append([]string(nil), ids...)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}
