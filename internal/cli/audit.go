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
	"github.com/spf13/cobra"
)

func newAuditCmd(cfg *Config) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events, newest first",
		Long: `List recent audit events, newest first.

Example:
  devicetrust audit list --user alice --limit 20 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")

			srv, err := cfg.OpenServer(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown() }()

			events, err := srv.Storage().Audit().Recent(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintAuditEvents(events)
		},
	}
	listCmd.Flags().String("user", "", "only events for this user")
	listCmd.Flags().Int("limit", 50, "maximum number of events (0 for all)")
	auditCmd.AddCommand(listCmd)

	return auditCmd
}
