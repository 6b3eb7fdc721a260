package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// entryOverhead approximates the per-entry bookkeeping cost in bytes.
const entryOverhead = 64

// RistrettoTier is a cost-bounded alternative to MemoryTier for deployments
// that cannot keep every generated image in memory.
type RistrettoTier struct {
	c   *ristretto.Cache[string, Entry]
	ttl time.Duration
	now func() time.Time
}

// NewRistrettoTier creates a ristretto-backed tier holding at most
// maxCostBytes of cached values.
func NewRistrettoTier(maxCostBytes int64, ttl time.Duration, now func() time.Time) (*RistrettoTier, error) {
	if now == nil {
		now = time.Now
	}
	counters := maxCostBytes / 1000 * 10 // ~10x expected items of ~1KB
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoTier{c: c, ttl: ttl, now: now}, nil
}

func (t *RistrettoTier) Get(key string) (Entry, bool) {
	return t.c.Get(key)
}

// Set stores e and waits for the write buffer to drain, so a Get right
// after Set observes the entry.
func (t *RistrettoTier) Set(key string, e Entry) {
	cost := int64(len(e.Value) + len(key) + entryOverhead)
	if t.ttl > 0 {
		remaining := time.UnixMilli(e.Timestamp).Add(t.ttl).Sub(t.now())
		if remaining <= 0 {
			return
		}
		t.c.SetWithTTL(key, e, cost, remaining)
	} else {
		t.c.Set(key, e, cost)
	}
	t.c.Wait()
}

func (t *RistrettoTier) Delete(key string) {
	t.c.Del(key)
}

// Close shuts down the cache and releases resources.
func (t *RistrettoTier) Close() error {
	t.c.Close()
	return nil
}
