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

// Package cli implements the devicetrust command line: the server, schema
// migrations and local administration of accounts, authenticators and
// recovery keys.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the devicetrust command tree.
func NewRootCmd() *cobra.Command {
	cfg := NewConfig()

	rootCmd := &cobra.Command{
		Use:   "devicetrust",
		Short: "WebAuthn device trust and recovery key service",
		Long: `devicetrust registers WebAuthn authenticators for user accounts,
authenticates users with them and issues one-time recovery keys for
accounts that have lost their devices.

Storage backends:
  - memory:   in-process, lost on restart
  - bbolt:    single file embedded database
  - postgres: PostgreSQL, migrated with goose`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "",
		"config file (defaults plus DEVICETRUST_* environment when empty)")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(
		newVersionCmd(cfg),
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newCleanupCmd(cfg),
		newConfigCmd(cfg),
		newUserCmd(cfg),
		newAuthenticatorCmd(cfg),
		newRecoveryCmd(cfg),
		newAuditCmd(cfg),
	)
	return rootCmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		format, _ := rootCmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err)
		return err
	}
	return nil
}

func printVerbose(cfg *Config, cmd *cobra.Command, format string, args ...any) {
	if cfg.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
