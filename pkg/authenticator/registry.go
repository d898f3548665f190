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
	"time"
)

// Registry persists authenticators.
type Registry interface {
	// ListForUser returns the user's authenticators ordered by creation time.
	// An empty slice is returned for a user with none.
	ListForUser(ctx context.Context, userID string) ([]*Authenticator, error)

	// FindByCredentialID returns the authenticator with the given raw ID.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Authenticator, error)

	// Create registers a new authenticator. Returns ErrDuplicateCredential
	// if the credential ID is known for any user.
	Create(ctx context.Context, a *Authenticator) error

	// UpdateCounter stores newCount only if it is strictly greater than
	// the stored counter, checked in the same write. Otherwise returns
	// ErrCounterRegression and leaves the record unchanged. backedUp is
	// the backup state reported by the assertion and is stored with it.
	UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32, backedUp bool, usedAt time.Time) error

	// Touch records a use and the reported backup state without changing
	// the counter.
	Touch(ctx context.Context, credentialID []byte, backedUp bool, usedAt time.Time) error

	// Rename sets the device name. Returns ErrNotAuthorized if the
	// authenticator belongs to someone other than requestingUserID.
	Rename(ctx context.Context, credentialID []byte, requestingUserID, name string) error

	// Delete removes the authenticator. Returns ErrNotAuthorized if it
	// belongs to someone other than requestingUserID.
	Delete(ctx context.Context, credentialID []byte, requestingUserID string) error
}
