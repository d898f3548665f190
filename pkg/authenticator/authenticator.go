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

// Package authenticator holds the registry of WebAuthn credentials bound to
// user accounts.
//
// Credential IDs are unique across all users: the authentication path looks
// an authenticator up by the credential ID the client presents before any
// claimed identity is trusted. Signature counters only move forward, and
// the registry enforces that at write time.
package authenticator

import (
	"encoding/base64"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no authenticator has the credential ID.
	ErrNotFound = errors.New("authenticator not found")

	// ErrDuplicateCredential is returned when a credential ID is already registered.
	ErrDuplicateCredential = errors.New("duplicate credential")

	// ErrCounterRegression is returned when a signature counter fails to advance.
	ErrCounterRegression = errors.New("signature counter regression")

	// ErrNotAuthorized is returned when a user acts on an authenticator they do not own.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalid is returned when an authenticator record is incomplete.
	ErrInvalid = errors.New("invalid authenticator")
)

// DeviceType distinguishes credentials bound to one device from synced passkeys.
type DeviceType string

const (
	// DeviceSingle is a credential that cannot leave its authenticator.
	DeviceSingle DeviceType = "single_device"
	// DeviceMulti is a backup-eligible credential that may sync between devices.
	DeviceMulti DeviceType = "multi_device"
)

// DeviceTypeFor maps the backup-eligible flag to a DeviceType.
func DeviceTypeFor(backupEligible bool) DeviceType {
	if backupEligible {
		return DeviceMulti
	}
	return DeviceSingle
}

// Transport is a hint for how the client reaches the authenticator.
type Transport string

const (
	TransportUSB       Transport = "usb"
	TransportNFC       Transport = "nfc"
	TransportBLE       Transport = "ble"
	TransportInternal  Transport = "internal"
	TransportHybrid    Transport = "hybrid"
	TransportSmartCard Transport = "smart-card"
)

// Authenticator is a registered credential.
type Authenticator struct {
	// CredentialID is the raw credential identifier chosen by the authenticator.
	CredentialID []byte `json:"credential_id"`

	// UserID is the owning account.
	UserID string `json:"user_id"`

	// PublicKey is the COSE-encoded credential public key.
	PublicKey []byte `json:"public_key"`

	// SignCount is the last accepted signature counter.
	SignCount uint32 `json:"sign_count"`

	DeviceType DeviceType  `json:"device_type"`
	BackedUp   bool        `json:"backed_up"`
	Transports []Transport `json:"transports,omitempty"`

	// DeviceName is a user-facing label.
	DeviceName string `json:"device_name"`

	AAGUID          []byte `json:"aaguid,omitempty"`
	AttestationType string `json:"attestation_type,omitempty"`
	UserVerified    bool   `json:"user_verified"`

	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// ID returns the credential ID in unpadded base64url, the form used on the wire.
func (a *Authenticator) ID() string {
	return EncodeID(a.CredentialID)
}

// Validate checks the fields every backend requires.
func (a *Authenticator) Validate() error {
	if len(a.CredentialID) == 0 || len(a.PublicKey) == 0 || a.UserID == "" {
		return ErrInvalid
	}
	return nil
}

// Clone returns a deep copy.
func (a *Authenticator) Clone() *Authenticator {
	c := *a
	c.CredentialID = append([]byte(nil), a.CredentialID...)
	c.PublicKey = append([]byte(nil), a.PublicKey...)
	c.AAGUID = append([]byte(nil), a.AAGUID...)
	c.Transports = append([]Transport(nil), a.Transports...)
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// EncodeID encodes a raw credential ID for transport.
func EncodeID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// DecodeID decodes a transport-encoded credential ID. Padded input is accepted.
func DecodeID(s string) ([]byte, error) {
	if id, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return id, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
