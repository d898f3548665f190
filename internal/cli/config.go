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
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/internal/server"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the server configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables debug logging from the assembled services
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// Load reads the server configuration named by ConfigFile.
func (c *Config) Load() (*config.Config, error) {
	return config.Load(c.ConfigFile)
}

// logger returns the logger used by administrative commands. Their own
// output goes through a Printer, so service logs stay quiet unless
// verbose.
func (c *Config) logger(w io.Writer) (*slog.Logger, error) {
	level := "error"
	if c.Verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: "text", Output: w})
}

// OpenServer assembles the services described by the server
// configuration without listening. Callers must Shutdown the result.
func (c *Config) OpenServer(cmd *cobra.Command) (*server.Server, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	s, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		return nil, fmt.Errorf("failed to open services: %w", err)
	}
	return s, nil
}

// Printer returns a printer writing to the command's stdout.
func (c *Config) Printer(cmd *cobra.Command) *Printer {
	return NewPrinter(c.OutputFormat, cmd.OutOrStdout())
}

func newConfigCmd(cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the server configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and
DEVICETRUST_* environment overrides are applied. The postgres password
is masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg, err := cfg.Load()
			if err != nil {
				return err
			}
			data, err := serverCfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cfg.Load(); err != nil {
				return err
			}
			return cfg.Printer(cmd).PrintSuccess("Configuration is valid")
		},
	})

	return configCmd
}
