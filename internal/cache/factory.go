package cache

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config selects and sizes the cache tiers.
type Config struct {
	TTL            time.Duration
	Prefix         string
	MemoryBackend  string // "map" or "ristretto"
	MemoryMaxBytes int64
	Store          string // "memory", "sqlite", "redis" or "none"
	StoreMaxBytes  int64
	SQLitePath     string
	RedisPrefix    string
}

// NewFromConfig wires the memory tier and durable store named by cfg.
// redisClient is only used for the "redis" store. The returned close func
// releases tier and store resources.
func NewFromConfig(cfg Config, redisClient *redis.Client, logger *zap.Logger) (*Cache, func() error, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	var mem Tier
	switch cfg.MemoryBackend {
	case "ristretto":
		maxBytes := cfg.MemoryMaxBytes
		if maxBytes <= 0 {
			maxBytes = 256 << 20
		}
		rt, err := NewRistrettoTier(maxBytes, cfg.TTL, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("ristretto tier: %w", err)
		}
		mem = rt
	default:
		mem = NewMemoryTier(cfg.TTL, 0, nil)
	}

	var (
		store   Store
		closers []func() error
	)
	switch cfg.Store {
	case "none", "":
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis store selected without a redis client")
		}
		store = NewRedisStore(redisClient, RedisConfig{Prefix: cfg.RedisPrefix})
	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath, cfg.StoreMaxBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		store = s
		closers = append(closers, s.Close)
	case "memory":
		store = NewMapStore(int(cfg.StoreMaxBytes))
	default:
		return nil, nil, fmt.Errorf("unknown cache store %q", cfg.Store)
	}
	if store != nil {
		store = NewLoggingStore(store, cfg.Store, cfg.Prefix)
	}

	c := New(Options{
		TTL:    cfg.TTL,
		Prefix: cfg.Prefix,
		Memory: mem,
		Store:  store,
		Logger: logger,
	})

	closeAll := func() error {
		err := c.Close()
		for _, fn := range closers {
			if cerr := fn(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	}
	return c, closeAll, nil
}
