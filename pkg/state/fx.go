package state

import (
	"context"
	"time"

	"go.uber.org/fx"

	"wabot/pkg/config"
	"wabot/pkg/logger"
)

// Module provides the settings cache.
var Module = fx.Module("state",
	fx.Provide(ProvideCache),
)

// ProvideCache builds the cache from configuration.
func ProvideCache(log *logger.Logger, cfg *config.Config, lc fx.Lifecycle) (Cache, error) {
	cacheConfig := &Config{
		Backend:       BackendType(cfg.Cache.Backend),
		DefaultTTL:    time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		RedisPrefix:   cfg.Cache.RedisPrefix,
	}

	cache, err := NewCache(log, cacheConfig)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return cache.Close()
		},
	})

	return cache, nil
}
