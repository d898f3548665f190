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

package authenticator

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory Registry for development and testing.
type MemoryRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*Authenticator
	byUser map[string][]string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:   make(map[string]*Authenticator),
		byUser: make(map[string][]string),
	}
}

// ListForUser returns copies of the user's authenticators.
func (r *MemoryRegistry) ListForUser(ctx context.Context, userID string) ([]*Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byUser[userID]
	result := make([]*Authenticator, 0, len(keys))
	for _, k := range keys {
		result = append(result, r.byID[k].Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// FindByCredentialID returns a copy of the authenticator.
func (r *MemoryRegistry) FindByCredentialID(ctx context.Context, credentialID []byte) (*Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// Create stores a copy of a.
func (r *MemoryRegistry) Create(ctx context.Context, a *Authenticator) error {
	if err := a.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := hex.EncodeToString(a.CredentialID)
	if _, ok := r.byID[key]; ok {
		return ErrDuplicateCredential
	}
	r.byID[key] = a.Clone()
	r.byUser[a.UserID] = append(r.byUser[a.UserID], key)
	return nil
}

// UpdateCounter advances the counter under the write lock.
func (r *MemoryRegistry) UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32, backedUp bool, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrNotFound
	}
	if newCount <= a.SignCount {
		return ErrCounterRegression
	}
	a.SignCount = newCount
	a.BackedUp = backedUp
	a.LastUsedAt = &usedAt
	return nil
}

// Touch sets LastUsedAt and BackedUp.
func (r *MemoryRegistry) Touch(ctx context.Context, credentialID []byte, backedUp bool, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrNotFound
	}
	a.BackedUp = backedUp
	a.LastUsedAt = &usedAt
	return nil
}

// Rename changes the device name of an owned authenticator.
func (r *MemoryRegistry) Rename(ctx context.Context, credentialID []byte, requestingUserID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[hex.EncodeToString(credentialID)]
	if !ok {
		return ErrNotFound
	}
	if a.UserID != requestingUserID {
		return ErrNotAuthorized
	}
	a.DeviceName = name
	return nil
}

// Delete removes an owned authenticator.
func (r *MemoryRegistry) Delete(ctx context.Context, credentialID []byte, requestingUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := hex.EncodeToString(credentialID)
	a, ok := r.byID[key]
	if !ok {
		return ErrNotFound
	}
	if a.UserID != requestingUserID {
		return ErrNotAuthorized
	}

	delete(r.byID, key)
	keys := r.byUser[a.UserID]
	for i, k := range keys {
		if k == key {
			r.byUser[a.UserID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(r.byUser[a.UserID]) == 0 {
		delete(r.byUser, a.UserID)
	}
	return nil
}

// Count returns the total number of authenticators.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
