package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dreamspace-gateway/internal/cache"
	"dreamspace-gateway/internal/config"
	"dreamspace-gateway/internal/design"
	"dreamspace-gateway/internal/handlers"
	"dreamspace-gateway/internal/httpserver"
	"dreamspace-gateway/internal/imaging"
	"dreamspace-gateway/internal/llm"
	"dreamspace-gateway/internal/metrics"
	"dreamspace-gateway/pkg/logging/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("dreamspace exited with error: %v", err)
	}
}

func run(configPath string) error {
	// ----- Config -----
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_store", cfg.Cache.Store),
		zap.String("cache_memory_backend", cfg.Cache.MemoryBackend),
		zap.String("gemini_base_url", cfg.Gemini.BaseURL),
		zap.String("image_model", cfg.Gemini.ImageModel),
		zap.String("text_model", cfg.Gemini.TextModel),
		zap.Int("upstream_concurrency", cfg.Gemini.Concurrency),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Store == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Redis.Addr),
		)
	}

	// ----- Response cache -----
	responseCache, closeCache, err := cache.NewFromConfig(cfg.CacheFactory(), redisClient, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	if n, err := responseCache.PurgeExpired(context.Background()); err != nil {
		logger.Warn("startup cache purge failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("purged expired cache entries", zap.Int("removed", n))
	}

	// ----- Gemini client -----
	// A missing key is not fatal: requests fail with a config error until
	// the key is set.
	llmClient, err := llm.NewClient(cfg.LLM(), logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Design service -----
	svc, err := design.NewService(design.Options{
		Client:     llmClient,
		Cache:      responseCache,
		Executor:   llm.NewExecutor(cfg.RetryPolicy(), logger),
		Transcoder: imaging.NewTranscoder(logger),
		Pool:       design.NewPool(cfg.Gemini.Concurrency),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, handlers.NewDesignHandler(svc), httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting dreamspace",
		zap.String("addr", srv.Addr),
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
		return err
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
