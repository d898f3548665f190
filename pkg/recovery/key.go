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

// Package recovery implements one-time recovery keys, the fallback path to a
// verified identity when no authenticator is available.
//
// A key is sixteen characters from [A-Z0-9] displayed as XXXX-XXXX-XXXX-XXXX.
// Only an argon2id hash and its per-key salt are persisted; the plaintext is
// returned once by Generate. Verification never says why a key was
// rejected: wrong, expired, unknown and already used all yield ErrInvalid.
package recovery

import (
	"errors"
	"time"
)

// DefaultTTL is how long a recovery key stays valid.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrInvalid is the single verification failure.
	ErrInvalid = errors.New("invalid recovery key")

	// ErrAlreadyUsed is returned by Store.MarkUsed when the key was used,
	// invalidated or expired before the claim.
	ErrAlreadyUsed = errors.New("recovery key already used")

	// ErrDuplicateKey is returned by Store.Create for a reused ID.
	ErrDuplicateKey = errors.New("recovery key already exists")
)

// Key is a stored recovery key.
type Key struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Hash      []byte     `json:"hash"`
	Salt      []byte     `json:"salt"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Active reports whether the key can still be redeemed at now.
func (k *Key) Active(now time.Time) bool {
	return !k.Used && now.Before(k.ExpiresAt)
}
