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

package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store persists challenges. Take and TakeValue must delete and return
// the record in one atomic step so that two concurrent callers can never
// both receive the same challenge.
type Store interface {
	// Put saves a challenge. When c.UserID is set, any live challenge of
	// the same kind for that user is replaced.
	Put(ctx context.Context, c *Challenge) error

	// Take removes and returns the challenge of the given kind issued to
	// userID. Returns ErrExpiredOrMissing if there is none.
	Take(ctx context.Context, kind Kind, userID string) (*Challenge, error)

	// TakeValue removes and returns the challenge of the given kind with
	// the given value. Returns ErrExpiredOrMissing if there is none.
	TakeValue(ctx context.Context, kind Kind, value string) (*Challenge, error)

	// DeleteExpired removes every challenge whose expiry is at or before
	// now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager issues and consumes challenges on top of a Store, owning the
// TTL and the clock.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the challenge lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	m := &Manager{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the configured challenge lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Builder derives the ceremony payload from the raw challenge bytes
// before the challenge is persisted.
type Builder func(raw []byte) ([]byte, error)

// Issue generates a fresh challenge for kind and userID, persists it and
// returns it. When build is non-nil its result is stored as the payload
// and handed back on consume.
func (m *Manager) Issue(ctx context.Context, kind Kind, userID string, build Builder) (*Challenge, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	raw, value, err := NewValue()
	if err != nil {
		return nil, err
	}
	var payload []byte
	if build != nil {
		if payload, err = build(raw); err != nil {
			return nil, err
		}
	}
	now := m.now().UTC()
	c := &Challenge{
		Value:     value,
		Kind:      kind,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return c, nil
}

// Consume removes the current challenge of kind for userID and returns it
// if it has not expired. The record is gone after this call either way.
func (m *Manager) Consume(ctx context.Context, kind Kind, userID string) (*Challenge, error) {
	if userID == "" {
		return nil, ErrExpiredOrMissing
	}
	c, err := m.store.Take(ctx, kind, userID)
	return m.check(c, err)
}

// ConsumeValue removes the challenge of kind carrying value and returns it
// if it has not expired.
func (m *Manager) ConsumeValue(ctx context.Context, kind Kind, value string) (*Challenge, error) {
	if value == "" {
		return nil, ErrExpiredOrMissing
	}
	c, err := m.store.TakeValue(ctx, kind, value)
	return m.check(c, err)
}

// Cleanup deletes expired challenges. Lookups enforce the TTL on their
// own, so this only reclaims space.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}

func (m *Manager) check(c *Challenge, err error) (*Challenge, error) {
	if err != nil {
		if errors.Is(err, ErrExpiredOrMissing) {
			return nil, ErrExpiredOrMissing
		}
		return nil, fmt.Errorf("take challenge: %w", err)
	}
	if c.Expired(m.now()) {
		return nil, ErrExpiredOrMissing
	}
	return c, nil
}
