package maintenance

import (
	"context"

	"go.uber.org/fx"
)

// Module provides and starts the maintenance runner.
var Module = fx.Module("maintenance",
	fx.Provide(New),
	fx.Invoke(func(r *Runner, lc fx.Lifecycle) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return r.Start()
			},
			OnStop: func(ctx context.Context) error {
				return r.Stop()
			},
		})
	}),
)
