package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dreamspace-gateway/internal/metrics"
	"dreamspace-gateway/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging + latency metrics.
type LoggingStore struct {
	inner   Store
	backend string
	prefix  string
}

// NewLoggingStore returns a store that logs and records metrics.
// prefix is the cache key namespace; empty means DefaultPrefix.
func NewLoggingStore(inner Store, backend, prefix string) Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &LoggingStore{inner: inner, backend: backend, prefix: prefix}
}

func (s *LoggingStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	s.observe("get", start)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}

	fields := s.fields(key, start, zap.String("cache_result", result))
	if err != nil {
		logging.L(ctx).Error("durable_cache_get", append(fields, zap.Error(err))...)
	} else {
		logging.L(ctx).Debug("durable_cache_get", fields...)
	}

	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	s.observe("set", start)

	fields := s.fields(key, start, zap.Int("value_bytes", len(value)))
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		logging.L(ctx).Warn("durable_cache_set_quota", fields...)
	case err != nil:
		logging.L(ctx).Error("durable_cache_set", append(fields, zap.Error(err))...)
	default:
		logging.L(ctx).Debug("durable_cache_set", fields...)
	}

	return err
}

func (s *LoggingStore) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Remove(ctx, key)
	s.observe("remove", start)

	if err != nil {
		logging.L(ctx).Error("durable_cache_remove", append(s.fields(key, start), zap.Error(err))...)
	}
	return err
}

func (s *LoggingStore) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := s.inner.Keys(ctx)
	s.observe("keys", start)

	if err != nil {
		logging.L(ctx).Error("durable_cache_keys",
			zap.String("backend", s.backend),
			zap.Error(err),
		)
	}
	return keys, err
}

func (s *LoggingStore) fields(key string, start time.Time, extra ...zap.Field) []zap.Field {
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	return append([]zap.Field{
		zap.String("backend", s.backend),
		zap.String("hash_key", key),
		zap.String("kind", kindOf(key, s.prefix)),
		zap.Float64("latency_ms", latencyMs),
	}, extra...)
}

func (s *LoggingStore) observe(op string, start time.Time) {
	metrics.CacheStoreLatencySeconds.
		WithLabelValues(s.backend, op).
		Observe(time.Since(start).Seconds())
}
