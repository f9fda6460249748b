package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"streamgate/internal/metrics"
	"streamgate/pkg/logging"
)

// LoggingCache wraps a Cache with logging + metrics.
type LoggingCache struct {
	inner Cache
}

func NewLoggingCache(inner Cache) Cache {
	return &LoggingCache{inner: inner}
}

func (c *LoggingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
		metrics.CatalogCacheHitsTotal.Inc()
	}

	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.String("cache_result", result), // hit | miss | error
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		logger.Error("catalog_cache_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("catalog_cache_get", fields...)
	}

	return value, ok, err
}

func (c *LoggingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("cache_key", key),
		zap.Int("bytes", len(value)),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}

	if err != nil {
		logger.Error("catalog_cache_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("catalog_cache_set", fields...)
	}

	return err
}
