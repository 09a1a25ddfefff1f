package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"wabot/pkg/config"
)

// Module provides logger for fx dependency injection.
var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
)

// ProvideLogger builds the logger from the loaded application config.
func ProvideLogger(cfg *config.Config, lc fx.Lifecycle) (*Logger, error) {
	logCfg := DefaultConfig()
	logCfg.Level = Level(cfg.Log.Level)
	logCfg.OutputPath = cfg.Log.OutputPath
	logCfg.Development = cfg.Log.Development

	log, err := New(logCfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Logger initialized",
				zap.String("level", string(logCfg.Level)),
				zap.String("output", logCfg.OutputPath))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Sync may fail on stdout; ignore.
			_ = log.Sync()
			return nil
		},
	})

	return log, nil
}
