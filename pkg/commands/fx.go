package commands

import (
	"go.uber.org/fx"

	"wabot/pkg/logger"
)

// Module provides the command registry with the built-in sources.
var Module = fx.Module("commands",
	fx.Provide(ProvideRegistry),
)

// ProvideRegistry builds the registry and performs the initial load.
func ProvideRegistry(log *logger.Logger) (*Registry, error) {
	r := NewRegistry(log)
	r.AddSource(GeneralSource())
	r.AddSource(GroupSource())
	r.AddSource(OwnerSource())

	if err := r.Load(true); err != nil {
		return nil, err
	}
	return r, nil
}
