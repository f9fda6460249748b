package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamgate/internal/catalog"
	"streamgate/internal/handlers"
	"streamgate/internal/httpserver"
	"streamgate/internal/metrics"
	"streamgate/internal/relay"
	"streamgate/internal/session"
	"streamgate/internal/upstream"
	"streamgate/pkg/logging"
)

type Config struct {
	Port         string
	CacheBackend string // "memory" or "redis"
	RedisAddr    string
	BaseURL      string
	APIKey       string
	Referer      string
	Title        string
}

func LoadConfig() Config {
	return Config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: getenv("CACHE_BACKEND", "memory"),
		RedisAddr:    getenv("REDIS_ADDR", "127.0.0.1:6379"),
		BaseURL:      getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		APIKey:       os.Getenv("OPENROUTER_API_KEY"),
		Referer:      os.Getenv("HTTP_REFERER"),
		Title:        os.Getenv("X_TITLE"),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("base_url", cfg.BaseURL),
	)

	if cfg.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required")
	}

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Model catalog cache -----
	cacheCfg := catalog.Config{
		Backend: cfg.CacheBackend,
		TTL:     5 * time.Minute,
		Prefix:  "streamgate",
	}
	baseCache := catalog.NewCache(cacheCfg, redisClient)
	if closer, ok := baseCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	catalogCache := catalog.NewLoggingCache(baseCache)

	// ----- Upstream client -----
	upstreamClient, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := upstreamClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Session store -----
	store := session.NewStore(session.DefaultTTL, session.DefaultSweepInterval, logger)
	defer store.Close()

	// ----- Relay orchestrator -----
	orchestrator := relay.NewOrchestrator(upstreamClient, store, logger)

	// ----- Handlers -----
	prepareHandler := handlers.NewPrepareHandler(store)
	streamHandler := handlers.NewStreamHandler(store, orchestrator)
	modelsHandler := handlers.NewModelsHandler(upstreamClient, catalogCache, cacheCfg.TTL)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, prepareHandler, streamHandler, modelsHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: SSE responses outlive any fixed write deadline;
		// the relay bounds each attempt itself.
		IdleTimeout: 60 * time.Second,
	}

	logger.Info("starting gateway",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
