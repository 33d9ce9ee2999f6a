package commands

import (
	"context"

	"github.com/systmms/pgrotate/internal/config"
	"github.com/systmms/pgrotate/internal/database"
	"github.com/systmms/pgrotate/internal/rotation"
	"github.com/systmms/pgrotate/internal/secretstore"
)

// buildRotator assembles the store, the database applier, and the
// rotator from the loaded configuration.
func buildRotator(ctx context.Context, cfg *config.Config, opts ...rotation.RotatorOption) (*rotation.Rotator, error) {
	store, err := secretstore.New(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, err
	}

	var dbOpts []database.Option
	if timeout := cfg.ConnectTimeout(); timeout > 0 {
		dbOpts = append(dbOpts, database.WithConnectTimeout(timeout))
	}
	if cfg.Definition != nil && cfg.Definition.Database.SSLMode != "" {
		dbOpts = append(dbOpts, database.WithSSLMode(cfg.Definition.Database.SSLMode))
	}
	applier := database.New(cfg.Logger, dbOpts...)

	if cfg.Definition != nil && cfg.Definition.Password.Length > 0 {
		opts = append(opts, rotation.WithPasswordLength(cfg.Definition.Password.Length))
	}

	return rotation.New(store, applier, cfg.Logger, opts...), nil
}
