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

package recovery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists recovery keys.
type Store interface {
	// Create stores a new key.
	Create(ctx context.Context, k *Key) error

	// ListActive returns the user's unused, unexpired keys, newest first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]*Key, error)

	// MarkUsed flags the key used if, and only if, it is still unused and
	// unexpired at at. Otherwise returns ErrAlreadyUsed. Of two concurrent
	// calls for the same key exactly one succeeds.
	MarkUsed(ctx context.Context, id string, at time.Time) error

	// InvalidateAll flags every unused key of the user as used and returns
	// how many were affected.
	InvalidateAll(ctx context.Context, userID string, at time.Time) (int, error)

	// DeleteExpired removes keys that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is an in-memory Store for development and testing.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*Key
}

// NewMemoryStore creates an empty in-memory recovery key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*Key)}
}

// Create stores a copy of k.
func (s *MemoryStore) Create(ctx context.Context, k *Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[k.ID]; ok {
		return ErrDuplicateKey
	}
	stored := *k
	s.keys[k.ID] = &stored
	return nil
}

// ListActive returns copies of the user's active keys.
func (s *MemoryStore) ListActive(ctx context.Context, userID string, now time.Time) ([]*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*Key
	for _, k := range s.keys {
		if k.UserID == userID && k.Active(now) {
			c := *k
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkUsed claims the key under the lock.
func (s *MemoryStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok || !k.Active(at) {
		return ErrAlreadyUsed
	}
	k.Used = true
	k.UsedAt = &at
	return nil
}

// InvalidateAll flags the user's unused keys.
func (s *MemoryStore) InvalidateAll(ctx context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, k := range s.keys {
		if k.UserID == userID && !k.Used {
			k.Used = true
			usedAt := at
			k.UsedAt = &usedAt
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes expired keys.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, k := range s.keys {
		if !now.Before(k.ExpiresAt) {
			delete(s.keys, id)
			n++
		}
	}
	return n, nil
}

// Count returns the number of stored keys, including used and expired ones.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
