package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "dreamspace.yaml"

// Load returns a Config from DefaultConfigFile and the environment.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional, as are the
// .env files merged into the environment first.
func LoadFrom(yamlPath string) (*Config, error) {
	// existing environment variables win over .env entries
	_ = godotenv.Load(".env", ".env.local")

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML unmarshals the YAML file over cfg. A missing file is not an error.
func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setDuration(&cfg.Server.RequestTimeout, "REQUEST_TIMEOUT")
	setInt64(&cfg.Server.MaxBodyBytes, "MAX_BODY_BYTES")

	setString(&cfg.Logging.Env, "APP_ENV")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.BaseURL, "GEMINI_BASE_URL")
	setString(&cfg.Gemini.ImageModel, "GEMINI_IMAGE_MODEL")
	setString(&cfg.Gemini.TextModel, "GEMINI_TEXT_MODEL")
	setDuration(&cfg.Gemini.UpstreamTimeout, "UPSTREAM_TIMEOUT")
	setInt(&cfg.Gemini.Concurrency, "UPSTREAM_CONCURRENCY")

	setInt(&cfg.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.InitialDelay, "RETRY_INITIAL_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "RETRY_MAX_DELAY")

	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setString(&cfg.Cache.MemoryBackend, "CACHE_MEMORY_BACKEND")
	setInt64(&cfg.Cache.MemoryMaxBytes, "CACHE_MEMORY_MAX_BYTES")
	setString(&cfg.Cache.Store, "CACHE_STORE")
	setString(&cfg.Cache.SQLitePath, "CACHE_SQLITE_PATH")
	setInt64(&cfg.Cache.StoreMaxBytes, "CACHE_STORE_MAX_BYTES")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
}

// validate rejects values no component can run with. A missing API key is
// allowed: generation calls then fail with a configuration error.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be > 0")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		return errors.New("server.max_body_bytes must be >= 1")
	}
	if cfg.Gemini.Concurrency < 0 {
		return errors.New("gemini.concurrency must be >= 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.InitialDelay {
		return errors.New("retry.max_delay must be >= retry.initial_delay")
	}
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}

	switch cfg.Cache.MemoryBackend {
	case "map", "ristretto":
	default:
		return fmt.Errorf("cache.memory_backend %q must be map or ristretto", cfg.Cache.MemoryBackend)
	}
	switch cfg.Cache.Store {
	case "memory", "redis", "none":
	case "sqlite":
		if cfg.Cache.SQLitePath == "" {
			return errors.New("cache.sqlite_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("cache.store %q must be memory, sqlite, redis or none", cfg.Cache.Store)
	}
	if cfg.Cache.Store == "redis" && cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis store")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
