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

package user

import (
	"context"
	"sort"
	"sync"
)

// Store defines the interface for user persistence.
type Store interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// Create stores a new user. Returns ErrUserAlreadyExists if the ID is taken.
	Create(ctx context.Context, u *User) error

	// List returns all users ordered by ID.
	List(ctx context.Context) ([]*User, error)
}

// MemoryStore is an in-memory Store for development and testing.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// Get retrieves a user by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Create stores a copy of u.
func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	if err := ValidateID(u.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return ErrUserAlreadyExists
	}
	s.users[u.ID] = *u
	return nil
}

// List returns all users ordered by ID.
func (s *MemoryStore) List(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		u := u
		result = append(result, &u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Count returns the number of users.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
