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
	"sync"
	"time"
)

type userKey struct {
	kind   Kind
	userID string
}

type valueKey struct {
	kind  Kind
	value string
}

// MemoryStore is an in-memory Store for development and testing.
type MemoryStore struct {
	mu      sync.Mutex
	byValue map[valueKey]*Challenge
	byUser  map[userKey]string

	// unscoped holds challenges without a user in issue order so Put can
	// drop expired ones without waiting for DeleteExpired.
	unscoped []valueKey
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byValue: make(map[valueKey]*Challenge),
		byUser:  make(map[userKey]string),
	}
}

// Put stores c, replacing the previous challenge for the same user and kind.
func (s *MemoryStore) Put(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	vk := valueKey{c.Kind, c.Value}
	if c.UserID != "" {
		uk := userKey{c.Kind, c.UserID}
		if prev, ok := s.byUser[uk]; ok {
			delete(s.byValue, valueKey{c.Kind, prev})
		}
		s.byUser[uk] = c.Value
	} else {
		s.pruneUnscoped(c.CreatedAt)
		s.unscoped = append(s.unscoped, vk)
	}
	s.byValue[vk] = &stored
	return nil
}

// pruneUnscoped drops unscoped challenges from the front of the queue that
// have been taken or have expired at now. Callers hold s.mu.
func (s *MemoryStore) pruneUnscoped(now time.Time) {
	n := 0
	for _, vk := range s.unscoped {
		c, ok := s.byValue[vk]
		if ok && !c.Expired(now) {
			break
		}
		if ok {
			delete(s.byValue, vk)
		}
		n++
	}
	if n == 0 {
		return
	}
	s.unscoped = append(s.unscoped[:0:0], s.unscoped[n:]...)
}

// Take removes and returns the user's challenge of the given kind.
func (s *MemoryStore) Take(ctx context.Context, kind Kind, userID string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uk := userKey{kind, userID}
	value, ok := s.byUser[uk]
	if !ok {
		return nil, ErrExpiredOrMissing
	}
	delete(s.byUser, uk)

	vk := valueKey{kind, value}
	c, ok := s.byValue[vk]
	if !ok {
		return nil, ErrExpiredOrMissing
	}
	delete(s.byValue, vk)
	return c, nil
}

// TakeValue removes and returns the challenge with the given value.
func (s *MemoryStore) TakeValue(ctx context.Context, kind Kind, value string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vk := valueKey{kind, value}
	c, ok := s.byValue[vk]
	if !ok {
		return nil, ErrExpiredOrMissing
	}
	delete(s.byValue, vk)
	if c.UserID != "" {
		uk := userKey{kind, c.UserID}
		if s.byUser[uk] == value {
			delete(s.byUser, uk)
		}
	}
	return c, nil
}

// DeleteExpired removes challenges that expired at or before now.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for vk, c := range s.byValue {
		if !c.Expired(now) {
			continue
		}
		delete(s.byValue, vk)
		if c.UserID != "" {
			uk := userKey{c.Kind, c.UserID}
			if s.byUser[uk] == c.Value {
				delete(s.byUser, uk)
			}
		}
		removed++
	}
	s.pruneUnscoped(now)
	return removed, nil
}

// Count returns the number of stored challenges, live or expired.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byValue)
}
