package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// rejectingStore fails every write with the quota error and counts attempts.
type rejectingStore struct {
	*MapStore
	mu   sync.Mutex
	sets map[string]int
}

func newRejectingStore() *rejectingStore {
	return &rejectingStore{MapStore: NewMapStore(0), sets: make(map[string]int)}
}

func (s *rejectingStore) Set(_ context.Context, key, _ string) error {
	s.mu.Lock()
	s.sets[key]++
	s.mu.Unlock()
	return fmt.Errorf("wrapped: %w", ErrQuotaExceeded)
}

func (s *rejectingStore) attempts(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[key]
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("disk on fire") }
func (brokenStore) Remove(context.Context, string) error      { return nil }
func (brokenStore) Keys(context.Context) ([]string, error)    { return nil, errors.New("disk on fire") }

func newTestCache(t *testing.T, store Store, clock *fakeClock) *Cache {
	t.Helper()
	c := New(Options{
		TTL:    time.Hour,
		Store:  store,
		Now:    clock.Now,
		Logger: zaptest.NewLogger(t),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(t, NewMapStore(0), clock)

	type advice struct {
		Title string `json:"title"`
	}

	c.SetJSON(ctx, "advice_x", advice{Title: "Calm Nordic"})

	var got advice
	if !c.GetJSON(ctx, "advice_x", &got) {
		t.Fatalf("expected hit after SetJSON")
	}
	if got.Title != "Calm Nordic" {
		t.Fatalf("unexpected value: %#v", got)
	}

	if _, ok := c.Get(ctx, "advice_missing"); ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestCacheExpiresAtTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMapStore(0)
	c := newTestCache(t, store, clock)

	c.Set(ctx, "k", []byte(`"v"`))

	clock.Advance(time.Hour - time.Millisecond)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected hit just before TTL")
	}

	clock.Advance(time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss at exactly TTL")
	}
	if _, ok, _ := store.Get(ctx, DefaultPrefix+"k"); ok {
		t.Fatalf("expected expired durable entry to be removed")
	}
}

func TestCachePromotesDurableHit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMapStore(0)

	writer := newTestCache(t, store, clock)
	writer.Set(ctx, "k", []byte(`{"n":1}`))

	mem := NewMemoryTier(time.Hour, 0, clock.Now)
	reader := New(Options{TTL: time.Hour, Store: store, Memory: mem, Now: clock.Now})
	t.Cleanup(func() { _ = reader.Close() })

	got, ok := reader.Get(ctx, "k")
	if !ok || string(got) != `{"n":1}` {
		t.Fatalf("expected durable hit, got %q ok=%v", got, ok)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected durable hit to be promoted, memory holds %d", mem.Len())
	}
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore(0)
	c := newTestCache(t, store, newFakeClock())

	if err := store.Set(ctx, DefaultPrefix+"k", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected corrupt entry to read as miss")
	}
	if _, ok, _ := store.Get(ctx, DefaultPrefix+"k"); ok {
		t.Fatalf("expected corrupt entry to be removed")
	}
}

func TestCacheQuotaPrunesOldestAndRetries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMapStore(0)
	c := newTestCache(t, store, clock)

	for i := 0; i < 10; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte(`"v"`))
		clock.Advance(time.Second)
	}
	// quota is now exactly what the ten entries occupy
	store.maxBytes = store.Used()

	c.Set(ctx, "k10", []byte(`"v"`))

	for i := 0; i < 3; i++ {
		if _, ok, _ := store.Get(ctx, fmt.Sprintf("%sk%d", DefaultPrefix, i)); ok {
			t.Fatalf("expected k%d to be evicted", i)
		}
	}
	for i := 3; i <= 10; i++ {
		if _, ok, _ := store.Get(ctx, fmt.Sprintf("%sk%d", DefaultPrefix, i)); !ok {
			t.Fatalf("expected k%d to survive", i)
		}
	}
}

func TestCacheQuotaRetriesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newRejectingStore()
	c := newTestCache(t, store, newFakeClock())

	c.Set(ctx, "k", []byte(`"v"`))

	if n := store.attempts(DefaultPrefix + "k"); n != 2 {
		t.Fatalf("expected 2 write attempts, got %d", n)
	}
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected memory-only entry to be served")
	}
}

func TestCacheMemoryOnlyWhenDurableFails(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(t, brokenStore{}, clock)

	c.Set(ctx, "k", []byte(`"v"`))
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatalf("expected memory hit despite broken store")
	}

	fresh := newTestCache(t, brokenStore{}, clock)
	if _, ok := fresh.Get(ctx, "k"); ok {
		t.Fatalf("expected read error to degrade to a miss")
	}
}

func TestCachePruneIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMapStore(0)
	c := newTestCache(t, store, newFakeClock())

	if err := store.Set(ctx, "settings", "keep me"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c.Set(ctx, "a", []byte(`1`))
	c.Set(ctx, "b", []byte(`2`))

	removed, err := c.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected at least one eviction, got %d", removed)
	}
	if _, ok, _ := store.Get(ctx, "settings"); !ok {
		t.Fatalf("prune touched a key outside the namespace")
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 1 {
		t.Fatalf("expected 1 namespaced entry, got %d", st.Entries)
	}
}

func TestCachePurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMapStore(0)
	c := newTestCache(t, store, clock)

	c.Set(ctx, "old", []byte(`1`))
	clock.Advance(2 * time.Hour)
	c.Set(ctx, "new", []byte(`2`))

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Entries != 2 || st.Expired != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	removed, err := c.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if _, ok, _ := store.Get(ctx, DefaultPrefix+"new"); !ok {
		t.Fatalf("fresh entry was purged")
	}
}
