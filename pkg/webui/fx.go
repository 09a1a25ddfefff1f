package webui

import (
	"context"

	"go.uber.org/fx"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/handler"
	"wabot/pkg/logger"
	"wabot/pkg/whatsapp"
)

// Module provides the status server when it is enabled.
var Module = fx.Module("webui",
	fx.Provide(func(cfg *config.Config, log *logger.Logger, registry *commands.Registry, stats *handler.Stats, client whatsapp.Client) *Server {
		return NewServer(cfg, log, registry, stats, client)
	}),
	fx.Invoke(func(s *Server, cfg *config.Config, lc fx.Lifecycle) {
		if !cfg.WebUI.Enabled {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return s.Start()
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
