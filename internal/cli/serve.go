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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/internal/server"
)

func newServeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the device trust HTTP server",
		Long: `Run the HTTP API until SIGINT or SIGTERM. SIGHUP re-reads the
config file and applies logging changes.

Example:
  devicetrust serve --config /etc/devicetrust/config.yaml
  DEVICETRUST_STORAGE_BACKEND=bbolt devicetrust serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := cfg.Load()
			if err != nil {
				return err
			}

			srv, err := server.New(serverCfg, server.WithVersion(Version))
			if err != nil {
				return err
			}

			ctx := server.SetupSignalHandler()
			go watchReload(ctx, cfg.ConfigFile, srv)

			return srv.Run(ctx)
		},
	}
}

// watchReload reloads the config file on SIGHUP until ctx is done.
func watchReload(ctx context.Context, path string, srv *server.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := config.Load(path)
			if err != nil {
				srv.Logger().Error("Failed to reload configuration", slog.Any("error", err))
				continue
			}
			if err := srv.Reload(next); err != nil {
				srv.Logger().Error("Failed to apply configuration", slog.Any("error", err))
			}
		}
	}
}
