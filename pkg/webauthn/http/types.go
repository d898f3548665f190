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

package http

import (
	"encoding/json"
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/webauthn"
)

// MaxBodyBytes caps request bodies. Attestation responses with a full
// certificate chain fit comfortably.
const MaxBodyBytes = 64 << 10

// RegistrationOptionsRequest is the request body for starting registration.
type RegistrationOptionsRequest struct {
	// UserID is the account identifier (required).
	UserID string `json:"userId"`

	// DisplayName is shown by the authenticator (optional).
	DisplayName string `json:"displayName,omitempty"`
}

// RegistrationVerifyRequest is the request body for completing registration.
type RegistrationVerifyRequest struct {
	UserID     string `json:"userId"`
	DeviceName string `json:"deviceName,omitempty"`

	// Response is the PublicKeyCredential returned by navigator.credentials.create.
	Response json.RawMessage `json:"response"`
}

// AuthenticationOptionsRequest is the request body for starting
// authentication. An empty UserID requests a discoverable credential.
type AuthenticationOptionsRequest struct {
	UserID string `json:"userId,omitempty"`
}

// AuthenticationVerifyRequest is the request body for completing authentication.
type AuthenticationVerifyRequest struct {
	// Response is the PublicKeyCredential returned by navigator.credentials.get.
	Response json.RawMessage `json:"response"`
}

// OptionsResponse carries ceremony options to the client.
type OptionsResponse struct {
	Kind      string    `json:"kind"`
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`

	// PublicKey is passed to navigator.credentials as the publicKey member.
	PublicKey any `json:"publicKey"`
}

func newOptionsResponse(opts *webauthn.CeremonyOptions) OptionsResponse {
	resp := OptionsResponse{
		Kind:      opts.Kind.String(),
		Challenge: opts.Challenge,
		ExpiresAt: opts.ExpiresAt,
	}
	switch {
	case opts.Creation != nil:
		resp.PublicKey = opts.Creation.Response
	case opts.Assertion != nil:
		resp.PublicKey = opts.Assertion.Response
	}
	return resp
}

// VerifyResponse is returned by the verify endpoints.
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	UserID   string `json:"userId,omitempty"`
	Token    string `json:"token,omitempty"`
}

// RecoveryRequest is the request body for recovery generate and invalidate.
type RecoveryRequest struct {
	UserID string `json:"userId"`
}

// RecoveryVerifyRequest is the request body for recovery verification.
type RecoveryVerifyRequest struct {
	UserID      string `json:"userId"`
	RecoveryKey string `json:"recoveryKey"`
}

// RecoveryKeyResponse returns a freshly generated recovery key. It is the
// only time the plaintext is available.
type RecoveryKeyResponse struct {
	RecoveryKey string `json:"recoveryKey"`
}

// OKResponse acknowledges an operation without a result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// RenameRequest is the request body for renaming an authenticator.
type RenameRequest struct {
	DeviceName string `json:"deviceName"`
}

// AuthenticatorResponse describes a registered authenticator. Key material
// is never returned.
type AuthenticatorResponse struct {
	CredentialID string     `json:"credentialId"`
	DeviceName   string     `json:"deviceName"`
	DeviceType   string     `json:"deviceType"`
	BackedUp     bool       `json:"backedUp"`
	Transports   []string   `json:"transports,omitempty"`
	SignCount    uint32     `json:"signCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

func newAuthenticatorResponse(a *authenticator.Authenticator) AuthenticatorResponse {
	transports := make([]string, len(a.Transports))
	for i, t := range a.Transports {
		transports[i] = string(t)
	}
	return AuthenticatorResponse{
		CredentialID: a.ID(),
		DeviceName:   a.DeviceName,
		DeviceType:   string(a.DeviceType),
		BackedUp:     a.BackedUp,
		Transports:   transports,
		SignCount:    a.SignCount,
		CreatedAt:    a.CreatedAt,
		LastUsedAt:   a.LastUsedAt,
	}
}

// AuthenticatorListResponse is returned by the list endpoint.
type AuthenticatorListResponse struct {
	Authenticators []AuthenticatorResponse `json:"authenticators"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeChallengeExpired     = "challenge_expired_or_missing"
	ErrorCodeUserNotFound         = "user_not_found"
	ErrorCodeAuthenticationFailed = "authentication_failed"
	ErrorCodeDuplicateCredential  = "duplicate_credential"
	ErrorCodeNotAuthorized        = "not_authorized"
	ErrorCodeUnauthenticated      = "unauthenticated"
	ErrorCodeNotFound             = "not_found"
	ErrorCodeInternalError        = "internal_error"
)

// Messages for failures that must not reveal which check failed.
const (
	messageAuthenticationFailed = "authentication failed"
	messageInternalError        = "internal server error"
)
