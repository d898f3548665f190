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

// Package memory provides an in-memory storage.Backend for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// Storage is an in-memory implementation of storage.Backend.
type Storage struct {
	users          *user.MemoryStore
	authenticators *authenticator.MemoryRegistry
	challenges     *challenge.MemoryStore
	recoveryKeys   *recovery.MemoryStore
	audit          *auditLog

	mu     sync.RWMutex
	closed bool
}

var _ storage.Backend = (*Storage)(nil)

// New creates a new in-memory storage backend.
func New() *Storage {
	return &Storage{
		users:          user.NewMemoryStore(),
		authenticators: authenticator.NewMemoryRegistry(),
		challenges:     challenge.NewMemoryStore(),
		recoveryKeys:   recovery.NewMemoryStore(),
		audit:          &auditLog{sink: audit.NewMemorySink()},
	}
}

func (s *Storage) Users() user.Store                      { return s.users }
func (s *Storage) Authenticators() authenticator.Registry { return s.authenticators }
func (s *Storage) Challenges() challenge.Store            { return s.challenges }
func (s *Storage) RecoveryKeys() recovery.Store           { return s.recoveryKeys }
func (s *Storage) Audit() storage.AuditLog                { return s.audit }

// Ping returns storage.ErrClosed after Close.
func (s *Storage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close marks the backend closed. The stores keep working so that
// in-flight requests can finish.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type auditLog struct {
	sink *audit.MemorySink
}

func (a *auditLog) Record(ctx context.Context, e audit.Event) error {
	return a.sink.Record(ctx, e)
}

func (a *auditLog) Recent(ctx context.Context, userID string, limit int) ([]audit.Event, error) {
	events := a.sink.Events()
	var result []audit.Event
	for i := len(events) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if userID == "" || events[i].UserID == userID {
			result = append(result, events[i])
		}
	}
	return result, nil
}
