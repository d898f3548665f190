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

// Package user defines the account identity that credentials and recovery
// keys are bound to. Accounts are owned by the surrounding system; this
// package only needs to resolve and, optionally, create them.
package user

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/validation"
)

// MaxIDLength is the WebAuthn limit on user handles in bytes.
const MaxIDLength = validation.MaxUserIDLength

// User is an account identity.
type User struct {
	// ID is the opaque account identifier. Its bytes are the WebAuthn user handle.
	ID string `json:"id"`

	// Name is the account name shown by authenticators (typically an email).
	Name string `json:"name"`

	// DisplayName is the human-readable name.
	DisplayName string `json:"display_name"`

	// CreatedAt is when the user was created.
	CreatedAt time.Time `json:"created_at"`
}

// Handle returns the WebAuthn user handle.
func (u *User) Handle() []byte {
	return []byte(u.ID)
}

// Label returns DisplayName, falling back to Name and then ID.
func (u *User) Label() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

// ValidateID checks that id can be used as a user handle.
func ValidateID(id string) error {
	if err := validation.ValidateUserID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	return nil
}
