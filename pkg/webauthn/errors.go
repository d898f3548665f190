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

package webauthn

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// Sentinel errors for WebAuthn operations. Most alias the package that
// produces them so errors.Is matches across layers.
var (
	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = user.ErrUserNotFound

	// ErrChallengeExpiredOrMissing is returned when no live challenge
	// matches the response.
	ErrChallengeExpiredOrMissing = challenge.ErrExpiredOrMissing

	// ErrAuthenticatorNotFound is returned when the presented credential
	// is not registered.
	ErrAuthenticatorNotFound = authenticator.ErrNotFound

	// ErrDuplicateCredential is returned when a credential ID is already registered.
	ErrDuplicateCredential = authenticator.ErrDuplicateCredential

	// ErrCounterRegression is returned when an assertion's signature counter
	// does not advance. It may indicate a cloned authenticator.
	ErrCounterRegression = authenticator.ErrCounterRegression

	// ErrNotAuthorized is returned when a user acts on another user's authenticator.
	ErrNotAuthorized = authenticator.ErrNotAuthorized

	// ErrVerificationFailed is returned when an attestation or assertion
	// does not verify.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNoAuthenticators is returned when a user has no registered authenticators.
	ErrNoAuthenticators = errors.New("user has no registered authenticators")

	// ErrInvalidRequest is returned when the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("webauthn service not configured")
)

// WebAuthnError wraps an error with additional context.
type WebAuthnError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *WebAuthnError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *WebAuthnError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *WebAuthnError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new WebAuthnError with the given operation and error.
func NewError(op string, err error) error {
	return &WebAuthnError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// verificationError records the library's reason while matching
// ErrVerificationFailed.
func verificationError(op string, cause error) error {
	return NewError(op, fmt.Errorf("%w: %w", ErrVerificationFailed, cause))
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsChallengeExpiredOrMissing returns true if no live challenge matched.
func IsChallengeExpiredOrMissing(err error) bool {
	return errors.Is(err, ErrChallengeExpiredOrMissing)
}

// IsAuthenticatorNotFound returns true if the credential is not registered.
func IsAuthenticatorNotFound(err error) bool {
	return errors.Is(err, ErrAuthenticatorNotFound)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsCounterRegression returns true if the signature counter did not advance.
func IsCounterRegression(err error) bool {
	return errors.Is(err, ErrCounterRegression)
}
