// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage/bbolt"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage/memory"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage/postgres"
)

// OpenStorage opens the backend selected by cfg. Postgres schemas are
// migrated first when cfg.MigrateOnStart is set.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case config.BackendMemory, "":
		logger.Warn("Using in-memory storage; all state is lost on restart")
		return memory.New(), nil

	case config.BackendBolt:
		logger.Info("Opening bbolt storage", slog.String("path", cfg.Path))
		store, err := bbolt.Open(cfg.Path, nil)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		logger.Info("Connecting to postgres storage")
		store, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.MigrateOnStart {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
			logger.Info("Postgres migrations applied")
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
