package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/storage"
	"github.com/rhuss/gatekeeper/pkg/storage/memory"
	"github.com/rhuss/gatekeeper/pkg/storage/postgres"
)

// NewKeyStore opens the configured key store. It returns a nil store when
// managed keys are disabled.
func NewKeyStore(ctx context.Context, cfg config.KeyStoreConfig) (storage.KeyStore, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		slog.Info("key store opened", "type", cfg.Type)
		return memory.New(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres key store: %w", err)
		}
		slog.Info("key store opened", "type", cfg.Type)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown key store type %q", cfg.Type)
	}
}
