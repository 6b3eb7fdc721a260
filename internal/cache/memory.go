package cache

import (
	"sync"
	"time"
)

// Tier is the in-process layer consulted before the durable Store.
type Tier interface {
	Get(key string) (Entry, bool)
	Set(key string, e Entry)
	Delete(key string)
	Close() error
}

// MemoryTier is an unbounded map that lives for the process lifetime.
// A background goroutine drops entries older than the TTL.
type MemoryTier struct {
	mu              sync.RWMutex
	items           map[string]Entry
	ttl             time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
	cleanupInterval time.Duration
}

// NewMemoryTier creates the map tier. A non-positive cleanupInterval
// defaults to 5 minutes; a nil now defaults to time.Now.
func NewMemoryTier(ttl, cleanupInterval time.Duration, now func() time.Time) *MemoryTier {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}

	t := &MemoryTier{
		items:           make(map[string]Entry),
		ttl:             ttl,
		now:             now,
		stopCleanup:     make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	go t.cleanupExpired()

	return t
}

func (t *MemoryTier) Get(key string) (Entry, bool) {
	t.mu.RLock()
	e, ok := t.items[key]
	t.mu.RUnlock()
	return e, ok
}

func (t *MemoryTier) Set(key string, e Entry) {
	// Copy to decouple from caller's buffer
	value := make([]byte, len(e.Value))
	copy(value, e.Value)
	e.Value = value

	t.mu.Lock()
	t.items[key] = e
	t.mu.Unlock()
}

func (t *MemoryTier) Delete(key string) {
	t.mu.Lock()
	delete(t.items, key)
	t.mu.Unlock()
}

// cleanupExpired runs periodically to remove expired entries.
func (t *MemoryTier) cleanupExpired() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t.ttl <= 0 {
				continue
			}
			now := t.now()
			t.mu.Lock()
			for k, e := range t.items {
				if e.Expired(now, t.ttl) {
					delete(t.items, k)
				}
			}
			t.mu.Unlock()
		case <-t.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. Call this on shutdown or in tests.
func (t *MemoryTier) Close() error {
	t.cleanupOnce.Do(func() {
		close(t.stopCleanup)
	})
	return nil
}

// Len returns the number of items currently held.
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Clear removes all items. Useful for tests or manual resets.
func (t *MemoryTier) Clear() {
	t.mu.Lock()
	t.items = make(map[string]Entry)
	t.mu.Unlock()
}
