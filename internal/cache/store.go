package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrQuotaExceeded is returned by Store.Set when the store is full.
	ErrQuotaExceeded = errors.New("cache: store quota exceeded")
)

// Store is the durable key/value tier. Implementations must write one key at
// a time so a rejected write leaves previously stored keys intact.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set returns an error wrapping ErrQuotaExceeded when capacity is exhausted.
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// MapStore is an in-process Store with an optional byte quota, counting
// len(key)+len(value) per entry the way browser storage does.
type MapStore struct {
	mu       sync.RWMutex
	items    map[string]string
	used     int
	maxBytes int
}

// NewMapStore creates a MapStore. maxBytes <= 0 disables the quota.
func NewMapStore(maxBytes int) *MapStore {
	return &MapStore{
		items:    make(map[string]string),
		maxBytes: maxBytes,
	}
}

func (s *MapStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *MapStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + len(key) + len(value)
	if old, ok := s.items[key]; ok {
		used -= len(key) + len(old)
	}
	if s.maxBytes > 0 && used > s.maxBytes {
		return ErrQuotaExceeded
	}

	s.items[key] = value
	s.used = used
	return nil
}

func (s *MapStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[key]; ok {
		s.used -= len(key) + len(old)
		delete(s.items, key)
	}
	return nil
}

func (s *MapStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Used returns the number of bytes currently accounted against the quota.
func (s *MapStore) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
