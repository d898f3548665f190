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
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
)

// Reload applies the parts of cfg that can change without a restart.
// Currently only logging is reloaded; storage, listener and WebAuthn
// relying party changes require a restart.
func (s *Server) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	if err := s.reloadLogging(cfg); err != nil {
		return fmt.Errorf("failed to reload logging configuration: %w", err)
	}

	if cfg.Storage != s.config.Storage || cfg.Server.Address != s.config.Server.Address {
		s.logger.Warn("Storage and listener changes take effect after a restart")
	}

	s.logger.Info("Server configuration reloaded successfully")
	return nil
}

func (s *Server) reloadLogging(cfg *config.Config) error {
	if cfg.Logging.Level == s.config.Logging.Level &&
		cfg.Logging.Format == s.config.Logging.Format {
		return nil
	}

	s.logger.Info("Updating logging configuration",
		slog.String("old_level", s.config.Logging.Level),
		slog.String("new_level", cfg.Logging.Level),
		slog.String("old_format", s.config.Logging.Format),
		slog.String("new_format", cfg.Logging.Format))

	next := cfg.Logging
	next.Output = s.config.Logging.Output
	logger, err := logging.New(next)
	if err != nil {
		return err
	}
	s.logger = logger
	s.config.Logging = next

	s.logger.Info("Logging configuration updated",
		slog.String("level", cfg.Logging.Level),
		slog.String("format", cfg.Logging.Format))
	return nil
}
