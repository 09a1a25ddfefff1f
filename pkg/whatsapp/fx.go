package whatsapp

import (
	"context"

	"go.uber.org/fx"

	"wabot/pkg/config"
	"wabot/pkg/logger"
)

// Module provides the WhatsApp bridge client.
var Module = fx.Module("whatsapp",
	fx.Provide(ProvideClient),
)

// ProvideClient builds the bridge and binds it to the fx lifecycle.
func ProvideClient(log *logger.Logger, cfg *config.Config, lc fx.Lifecycle) (Client, error) {
	bridge, err := NewBridge(log, cfg.Bridge)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return bridge.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return bridge.Stop(ctx)
		},
	})

	return bridge, nil
}
