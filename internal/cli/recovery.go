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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/internal/server"
)

var errRecoveryDisabled = errors.New("recovery keys are disabled (recovery.enabled is false)")

func newRecoveryCmd(cfg *Config) *cobra.Command {
	recoveryCmd := &cobra.Command{
		Use:   "recovery",
		Short: "Manage account recovery keys",
	}

	recoveryCmd.AddCommand(&cobra.Command{
		Use:   "generate <user-id>",
		Short: "Issue a recovery key for an existing user",
		Long: `Issue a one-time recovery key. Unless recovery.keep_previous is set,
the user's earlier keys stop working. The key is printed once and cannot
be retrieved later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := openRecovery(cfg, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			userID := args[0]
			if _, err := srv.Storage().Users().Get(cmd.Context(), userID); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			code, err := srv.Recovery().Generate(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintRecoveryKey(userID, code)
		},
	})

	recoveryCmd.AddCommand(&cobra.Command{
		Use:   "invalidate <user-id>",
		Short: "Invalidate every recovery key of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := openRecovery(cfg, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			if err := srv.Recovery().Invalidate(cmd.Context(), args[0]); err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintSuccess(fmt.Sprintf("Recovery keys for %s invalidated", args[0]))
		},
	})

	return recoveryCmd
}

func openRecovery(cfg *Config, cmd *cobra.Command) (*server.Server, error) {
	srv, err := cfg.OpenServer(cmd)
	if err != nil {
		return nil, err
	}
	if srv.Recovery() == nil {
		_ = srv.Shutdown()
		return nil, errRecoveryDisabled
	}
	return srv, nil
}
