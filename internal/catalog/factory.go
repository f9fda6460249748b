package catalog

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend string // "memory" or "redis"
	TTL     time.Duration
	Prefix  string
}

func NewCache(cfg Config, redisClient *redis.Client) Cache {
	switch cfg.Backend {
	case "redis":
		return NewRedisCache(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		})
	default:
		return NewMemoryCache(cfg.TTL)
	}
}
