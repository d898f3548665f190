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
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

func newUserCmd(cfg *Config) *cobra.Command {
	userCmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage user accounts",
		Long: `Commands for managing the accounts that authenticators and recovery
keys belong to. Accounts are also created on first registration when
webauthn.auto_create_users is enabled.`,
	}

	userCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			users, err := srv.Storage().Users().List(cmd.Context())
			if err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintUsers(users)
		},
	})

	createCmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create a user account",
		Long: `Create a user account so that it can register authenticators when
webauthn.auto_create_users is disabled.

Example:
  devicetrust user create alice@example.com --display-name "Alice"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := user.ValidateID(id); err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			displayName, _ := cmd.Flags().GetString("display-name")
			if name == "" {
				name = id
			}

			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			u := &user.User{
				ID:          id,
				Name:        name,
				DisplayName: displayName,
				CreatedAt:   time.Now().UTC(),
			}
			if err := srv.Storage().Users().Create(cmd.Context(), u); err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintSuccess(fmt.Sprintf("User %s created", id))
		},
	}
	createCmd.Flags().String("name", "", "account name shown by authenticators (default: user id)")
	createCmd.Flags().String("display-name", "", "human readable name")
	userCmd.AddCommand(createCmd)

	return userCmd
}
