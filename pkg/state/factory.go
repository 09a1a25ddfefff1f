package state

import (
	"fmt"

	"wabot/pkg/logger"
)

// NewCache creates a cache based on configuration.
func NewCache(log *logger.Logger, cfg *Config) (Cache, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryCache(cfg.DefaultTTL), nil

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required")
		}

		return NewRedisCache(log, &RedisCacheConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			Prefix:     cfg.RedisPrefix,
			DefaultTTL: cfg.DefaultTTL,
		})

	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
