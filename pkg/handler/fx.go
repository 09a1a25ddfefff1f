package handler

import (
	"go.uber.org/fx"

	"wabot/pkg/config"
	"wabot/pkg/gate"
	"wabot/pkg/logger"
)

// Module provides the pipeline and hooks it to the event stream.
var Module = fx.Module("handler",
	fx.Provide(
		NewStats,
		ProvideGate,
		New,
	),
	fx.Invoke(func(p *Pipeline) { p.Register() }),
)

// ProvideGate builds the gate from configuration.
func ProvideGate(log *logger.Logger, cfg *config.Config) *gate.Gate {
	return gate.New(log, cfg)
}
