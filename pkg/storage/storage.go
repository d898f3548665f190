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

// Package storage defines the persistence bundle the device trust services
// run on. A Backend hands out the user store, authenticator registry,
// challenge store and recovery key store of one database, plus an audit
// sink writing to the same place.
//
// Implementations live in the memory, bbolt and postgres subpackages and
// are checked against the same conformance suite in storagetest.
package storage

import (
	"context"
	"errors"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

var (
	// ErrClosed is returned when attempting to use a closed backend.
	ErrClosed = errors.New("storage: closed")

	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("storage: corrupt record")
)

// Backend bundles the stores of one database. All implementations must be
// safe for concurrent use.
type Backend interface {
	Users() user.Store
	Authenticators() authenticator.Registry
	Challenges() challenge.Store
	RecoveryKeys() recovery.Store

	// Audit returns a sink that appends to the backend's audit trail.
	Audit() AuditLog

	// Ping reports whether the database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// AuditLog is an audit sink that can be read back, newest first.
type AuditLog interface {
	audit.Sink

	// Recent returns up to limit events, newest first. A userID of ""
	// matches every user.
	Recent(ctx context.Context, userID string, limit int) ([]audit.Event, error)
}
