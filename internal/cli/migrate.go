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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/internal/server"
)

func newMigrateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage schema migrations",
		Long: `Apply pending goose migrations to the postgres backend. The bbolt
backend creates its buckets when opened and the memory backend has no
schema, so for those this only verifies that the store opens.

Example:
  devicetrust migrate --config /etc/devicetrust/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := cfg.Load()
			if err != nil {
				return err
			}
			logger, err := cfg.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			storageCfg := serverCfg.Storage
			storageCfg.MigrateOnStart = true
			printVerbose(cfg, cmd, "Opening %s storage", storageCfg.Backend)

			backend, err := server.OpenStorage(cmd.Context(), storageCfg, logger)
			if err != nil {
				return err
			}
			if err := backend.Close(); err != nil {
				return err
			}

			printer := cfg.Printer(cmd)
			if storageCfg.Backend == config.BackendPostgres {
				return printer.PrintSuccess("Migrations applied")
			}
			return printer.PrintSuccess(fmt.Sprintf("No migrations required for the %s backend", storageCfg.Backend))
		},
	}
}

func newCleanupCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired challenges and recovery keys once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			removed, err := srv.Janitor().RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			return cfg.Printer(cmd).PrintCleanup(removed)
		},
	}
}
