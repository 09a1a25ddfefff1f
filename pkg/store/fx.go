package store

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"wabot/pkg/config"
)

// Module provides the SQLite store.
var Module = fx.Module("store",
	fx.Provide(ProvideStore),
)

// ProvideStore opens the database at the configured path and closes it
// on shutdown.
func ProvideStore(cfg *config.Config, lc fx.Lifecycle) (*Store, error) {
	path := cfg.Store.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".wabot", "wabot.db")
	}

	st, err := Open(path)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return st.Close()
		},
	})

	return st, nil
}
