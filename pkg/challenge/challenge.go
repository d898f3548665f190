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

// Package challenge issues and consumes the single-use, time-bound
// challenges that anchor every WebAuthn ceremony.
//
// A challenge is live from Issue until it is consumed or its TTL elapses.
// Consumption removes the record whatever the outcome of the verification
// that follows, so a response can never be replayed against the same
// challenge. Issuing a new challenge for a (kind, user) pair replaces the
// previous one.
package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Size is the number of random bytes in a challenge.
const Size = 32

// DefaultTTL is the lifetime of a challenge when none is configured.
const DefaultTTL = 60 * time.Second

var (
	// ErrExpiredOrMissing is returned when no live challenge matches.
	// Expired and never-issued challenges are indistinguishable.
	ErrExpiredOrMissing = errors.New("challenge expired or missing")

	// ErrInvalidKind is returned for an unknown ceremony kind.
	ErrInvalidKind = errors.New("invalid ceremony kind")
)

// Kind identifies the ceremony a challenge belongs to.
type Kind uint8

const (
	// KindRegistration is a credential creation ceremony.
	KindRegistration Kind = iota + 1
	// KindAuthentication is an assertion ceremony.
	KindAuthentication
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRegistration:
		return "registration"
	case KindAuthentication:
		return "authentication"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known ceremony kind.
func (k Kind) Valid() bool {
	return k == KindRegistration || k == KindAuthentication
}

// ParseKind parses the wire name produced by String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "registration":
		return KindRegistration, nil
	case "authentication":
		return KindAuthentication, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Challenge is a pending ceremony challenge.
type Challenge struct {
	// Value is the base64url (unpadded) encoding of the random bytes.
	Value string `json:"value"`

	// Kind is the ceremony this challenge was issued for.
	Kind Kind `json:"kind"`

	// UserID scopes the challenge to an account. Empty for
	// discoverable authentication where the user is resolved later.
	UserID string `json:"user_id,omitempty"`

	// Payload is opaque ceremony state carried to verification.
	Payload []byte `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is no longer usable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Bytes decodes Value back to the raw challenge bytes.
func (c *Challenge) Bytes() ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(c.Value)
}

// NewValue returns Size random bytes and their transport encoding.
func NewValue() ([]byte, string, error) {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("generate challenge: %w", err)
	}
	return buf, base64.RawURLEncoding.EncodeToString(buf), nil
}
