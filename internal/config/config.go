// Package config loads service settings with the precedence
// defaults < YAML file < environment.
package config

import (
	"time"

	"dreamspace-gateway/internal/cache"
	"dreamspace-gateway/internal/llm"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Retry   RetryConfig   `yaml:"retry"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LoggingConfig struct {
	Env   string `yaml:"env"`   // "development" gets the console encoder
	Level string `yaml:"level"` // debug, info, warn, error
}

// GeminiConfig configures the generation API client.
type GeminiConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	ImageModel      string        `yaml:"image_model"`
	TextModel       string        `yaml:"text_model"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// Concurrency bounds in-flight upstream attempts; 0 means unbounded.
	Concurrency int `yaml:"concurrency"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CacheConfig selects the memory tier and durable store.
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	Prefix         string        `yaml:"prefix"`
	MemoryBackend  string        `yaml:"memory_backend"` // map or ristretto
	MemoryMaxBytes int64         `yaml:"memory_max_bytes"`
	Store          string        `yaml:"store"` // memory, sqlite, redis or none
	StoreMaxBytes  int64         `yaml:"store_max_bytes"`
	SQLitePath     string        `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	policy := llm.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 3 * time.Minute,
			MaxBodyBytes:   16 << 20,
		},
		Logging: LoggingConfig{
			Env:   "production",
			Level: "info",
		},
		Gemini: GeminiConfig{
			BaseURL:         llm.DefaultBaseURL,
			ImageModel:      llm.DefaultImageModel,
			TextModel:       llm.DefaultTextModel,
			UpstreamTimeout: 60 * time.Second,
			Concurrency:     4,
		},
		Retry: RetryConfig{
			MaxAttempts:  policy.MaxAttempts,
			InitialDelay: policy.InitialDelay,
			MaxDelay:     policy.MaxDelay,
		},
		Cache: CacheConfig{
			TTL:            cache.DefaultTTL,
			Prefix:         cache.DefaultPrefix,
			MemoryBackend:  "map",
			MemoryMaxBytes: 256 << 20,
			Store:          "sqlite",
			StoreMaxBytes:  50 << 20,
			SQLitePath:     "dreamspace-cache.db",
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Prefix: "dreamspace:",
		},
	}
}

// LLM returns the generation client configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		BaseURL:         c.Gemini.BaseURL,
		APIKey:          c.Gemini.APIKey,
		ImageModel:      c.Gemini.ImageModel,
		TextModel:       c.Gemini.TextModel,
		UpstreamTimeout: c.Gemini.UpstreamTimeout,
	}
}

// RetryPolicy returns the executor policy. Unset fields keep their defaults.
func (c *Config) RetryPolicy() llm.Policy {
	p := llm.DefaultPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.InitialDelay = c.Retry.InitialDelay
	p.MaxDelay = c.Retry.MaxDelay
	return p.WithDefaults()
}

// CacheFactory returns the cache wiring configuration.
func (c *Config) CacheFactory() cache.Config {
	return cache.Config{
		TTL:            c.Cache.TTL,
		Prefix:         c.Cache.Prefix,
		MemoryBackend:  c.Cache.MemoryBackend,
		MemoryMaxBytes: c.Cache.MemoryMaxBytes,
		Store:          c.Cache.Store,
		StoreMaxBytes:  c.Cache.StoreMaxBytes,
		SQLitePath:     c.Cache.SQLitePath,
		RedisPrefix:    c.Redis.Prefix,
	}
}
