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

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
)

func newAuthenticatorCmd(cfg *Config) *cobra.Command {
	authCmd := &cobra.Command{
		Use:     "authenticator",
		Aliases: []string{"authenticators", "auth"},
		Short:   "Manage registered authenticators",
	}

	authCmd.AddCommand(&cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's authenticators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			auths, err := srv.WebAuthn().ListAuthenticators(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintAuthenticators(auths)
		},
	})

	authCmd.AddCommand(&cobra.Command{
		Use:   "rename <user-id> <credential-id> <name>",
		Short: "Change an authenticator's device name",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			credentialID, err := authenticator.DecodeID(args[1])
			if err != nil {
				return err
			}
			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			if err := srv.WebAuthn().RenameAuthenticator(cmd.Context(), args[0], credentialID, args[2]); err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintSuccess(fmt.Sprintf("Authenticator %s renamed", args[1]))
		},
	})

	authCmd.AddCommand(&cobra.Command{
		Use:   "delete <user-id> <credential-id>",
		Short: "Remove an authenticator",
		Long: `Remove an authenticator from a user's account. The credential can
no longer be used to authenticate.

Example:
  devicetrust authenticator delete alice Q2hlY2tzdW0`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			credentialID, err := authenticator.DecodeID(args[1])
			if err != nil {
				return err
			}
			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			if err := srv.WebAuthn().DeleteAuthenticator(cmd.Context(), args[0], credentialID); err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintSuccess(fmt.Sprintf("Authenticator %s deleted", args[1]))
		},
	})

	return authCmd
}
