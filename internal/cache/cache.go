package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"dreamspace-gateway/internal/metrics"
)

const (
	// DefaultPrefix namespaces durable keys away from unrelated data.
	DefaultPrefix = "ds_cache_"
	// DefaultTTL is the maximum age of an entry.
	DefaultTTL = 24 * time.Hour
	// DefaultEvictFraction is the share of durable entries dropped per prune.
	DefaultEvictFraction = 0.3
)

// Entry is what both tiers hold. Timestamp is epoch milliseconds.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
}

// Expired reports whether the entry is at least ttl old at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(time.UnixMilli(e.Timestamp).Add(ttl))
}

// Options configures a Cache. Store may be nil for memory-only caching.
type Options struct {
	TTL           time.Duration
	Prefix        string
	Memory        Tier
	Store         Store
	EvictFraction float64
	Now           func() time.Time
	Logger        *zap.Logger
}

// Cache is the two-tier response cache. All failures are absorbed: reads
// degrade to misses and writes degrade to memory-only.
type Cache struct {
	ttl           time.Duration
	prefix        string
	mem           Tier
	store         Store
	evictFraction float64
	now           func() time.Time
	logger        *zap.Logger
}

// New builds a Cache, filling unset options with defaults.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Memory == nil {
		opts.Memory = NewMemoryTier(opts.TTL, 0, opts.Now)
	}
	if opts.EvictFraction <= 0 || opts.EvictFraction > 1 {
		opts.EvictFraction = DefaultEvictFraction
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Cache{
		ttl:           opts.TTL,
		prefix:        opts.Prefix,
		mem:           opts.Memory,
		store:         opts.Store,
		evictFraction: opts.EvictFraction,
		now:           opts.Now,
		logger:        opts.Logger.Named("cache"),
	}
}

// TTL returns the configured maximum entry age.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached JSON value for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	now := c.now()

	if e, ok := c.mem.Get(key); ok {
		if !e.Expired(now, c.ttl) {
			metrics.CacheLookupsTotal.WithLabelValues("memory", "hit").Inc()
			return e.Value, true
		}
		c.mem.Delete(key)
	}
	metrics.CacheLookupsTotal.WithLabelValues("memory", "miss").Inc()

	if c.store == nil {
		return nil, false
	}

	raw, ok, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		c.logger.Warn("durable cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheLookupsTotal.WithLabelValues("durable", "error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("durable", "miss").Inc()
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.remove(ctx, key)
		metrics.CacheLookupsTotal.WithLabelValues("durable", "error").Inc()
		return nil, false
	}
	if e.Expired(now, c.ttl) {
		c.remove(ctx, key)
		metrics.CacheLookupsTotal.WithLabelValues("durable", "expired").Inc()
		return nil, false
	}

	c.mem.Set(key, e)
	metrics.CacheLookupsTotal.WithLabelValues("durable", "hit").Inc()
	return e.Value, true
}

// Set stores value under key in memory and, best effort, in the durable store.
// A quota rejection triggers one prune and exactly one more write attempt.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	e := Entry{Key: key, Value: value, Timestamp: c.now().UnixMilli()}
	c.mem.Set(key, e)

	if c.store == nil {
		return
	}

	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("cache entry not serializable", zap.String("key", key), zap.Error(err))
		return
	}

	err = c.store.Set(ctx, c.prefix+key, string(raw))
	if err == nil {
		metrics.CacheWritesTotal.WithLabelValues("stored").Inc()
		return
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		c.logger.Warn("durable cache write failed", zap.String("key", key), zap.Error(err))
		metrics.CacheWritesTotal.WithLabelValues("memory_only").Inc()
		return
	}

	removed, pruneErr := c.Prune(ctx)
	c.logger.Info("durable cache full, pruned oldest entries",
		zap.String("key", key),
		zap.Int("removed", removed),
		zap.Error(pruneErr),
	)

	if err := c.store.Set(ctx, c.prefix+key, string(raw)); err != nil {
		c.logger.Info("durable cache write failed after prune, keeping entry in memory only",
			zap.String("key", key),
			zap.Error(err),
		)
		metrics.CacheWritesTotal.WithLabelValues("memory_only").Inc()
		return
	}
	metrics.CacheWritesTotal.WithLabelValues("stored_after_prune").Inc()
}

// GetJSON decodes the cached value for key into out.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("cached value does not match type", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("value not serializable", zap.String("key", key), zap.Error(err))
		return
	}
	c.Set(ctx, key, raw)
}

type stamped struct {
	key       string
	timestamp int64
}

// Prune removes the oldest evictFraction of namespaced durable entries, at
// least one. Unreadable entries count as oldest.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	entries, err := c.durableEntries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].timestamp < entries[j].timestamp
	})

	n := int(float64(len(entries)) * c.evictFraction)
	if n < 1 {
		n = 1
	}

	removed := 0
	for _, e := range entries[:n] {
		if err := c.store.Remove(ctx, e.key); err != nil {
			c.logger.Warn("evict failed", zap.String("key", e.key), zap.Error(err))
			continue
		}
		removed++
	}
	metrics.CacheEvictionsTotal.Add(float64(removed))
	return removed, nil
}

// Stats summarizes the durable tier.
type Stats struct {
	Entries int
	Expired int
	Bytes   int
}

// Stats scans the namespaced durable entries.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if c.store == nil {
		return st, nil
	}

	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		return st, err
	}

	now := c.now()
	for _, k := range keys {
		raw, ok, err := c.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		st.Entries++
		st.Bytes += len(k) + len(raw)

		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Expired(now, c.ttl) {
			st.Expired++
		}
	}
	return st, nil
}

// PurgeExpired removes expired and unreadable durable entries.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	entries, err := c.durableEntries(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-c.ttl).UnixMilli()
	removed := 0
	for _, e := range entries {
		if e.timestamp > cutoff {
			continue
		}
		if err := c.store.Remove(ctx, e.key); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close releases the memory tier.
func (c *Cache) Close() error {
	return c.mem.Close()
}

func (c *Cache) durableEntries(ctx context.Context) ([]stamped, error) {
	keys, err := c.namespacedKeys(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]stamped, 0, len(keys))
	for _, k := range keys {
		var ts int64
		if raw, ok, err := c.store.Get(ctx, k); err == nil && ok {
			var e Entry
			if json.Unmarshal([]byte(raw), &e) == nil {
				ts = e.Timestamp
			}
		}
		entries = append(entries, stamped{key: k, timestamp: ts})
	}
	return entries, nil
}

func (c *Cache) namespacedKeys(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, c.prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Cache) remove(ctx context.Context, key string) {
	if err := c.store.Remove(ctx, c.prefix+key); err != nil {
		c.logger.Warn("durable cache remove failed", zap.String("key", key), zap.Error(err))
	}
}
