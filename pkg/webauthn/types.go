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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// CeremonyOptions is what a client needs to start a ceremony. Exactly one of
// Creation and Assertion is set, according to Kind.
type CeremonyOptions struct {
	Kind      challenge.Kind
	Challenge string
	ExpiresAt time.Time

	// Creation holds the publicKey options for navigator.credentials.create.
	Creation *protocol.CredentialCreation

	// Assertion holds the publicKey options for navigator.credentials.get.
	Assertion *protocol.CredentialAssertion
}

// RegistrationResult is returned by a successful CompleteRegistration.
type RegistrationResult struct {
	Verified      bool
	Authenticator *authenticator.Authenticator
	Token         string
}

// AuthenticationResult is returned by a successful CompleteAuthentication.
type AuthenticationResult struct {
	Verified      bool
	UserID        string
	Authenticator *authenticator.Authenticator
	Token         string
}

// principal adapts a user and their authenticators to webauthn.User.
type principal struct {
	user        *user.User
	credentials []webauthn.Credential
}

func newPrincipal(u *user.User, auths []*authenticator.Authenticator) *principal {
	creds := make([]webauthn.Credential, len(auths))
	for i, a := range auths {
		creds[i] = toCredential(a)
	}
	return &principal{user: u, credentials: creds}
}

// WebAuthnID returns the user handle.
func (p *principal) WebAuthnID() []byte {
	return p.user.Handle()
}

// WebAuthnName returns the account name shown by authenticators.
func (p *principal) WebAuthnName() string {
	if p.user.Name != "" {
		return p.user.Name
	}
	return p.user.ID
}

// WebAuthnDisplayName returns the user's display name.
func (p *principal) WebAuthnDisplayName() string {
	return p.user.Label()
}

// WebAuthnCredentials returns the user's registered credentials.
func (p *principal) WebAuthnCredentials() []webauthn.Credential {
	return p.credentials
}

// toCredential converts a stored authenticator to the go-webauthn credential type.
func toCredential(a *authenticator.Authenticator) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, len(a.Transports))
	for i, t := range a.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}
	return webauthn.Credential{
		ID:              a.CredentialID,
		PublicKey:       a.PublicKey,
		AttestationType: a.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserVerified:   a.UserVerified,
			BackupEligible: a.DeviceType == authenticator.DeviceMulti,
			BackupState:    a.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    a.AAGUID,
			SignCount: a.SignCount,
		},
	}
}

// fromCredential builds an authenticator record from a verified attestation.
func fromCredential(userID, deviceName string, wc *webauthn.Credential, now time.Time) *authenticator.Authenticator {
	transports := make([]authenticator.Transport, len(wc.Transport))
	for i, t := range wc.Transport {
		transports[i] = authenticator.Transport(t)
	}
	return &authenticator.Authenticator{
		CredentialID:    wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		SignCount:       wc.Authenticator.SignCount,
		DeviceType:      authenticator.DeviceTypeFor(wc.Flags.BackupEligible),
		BackedUp:        wc.Flags.BackupState,
		Transports:      transports,
		DeviceName:      deviceName,
		AAGUID:          wc.Authenticator.AAGUID,
		AttestationType: wc.AttestationType,
		UserVerified:    wc.Flags.UserVerified,
		CreatedAt:       now,
	}
}

// descriptors lists authenticators as credential descriptors for
// excludeCredentials and allowCredentials.
func descriptors(auths []*authenticator.Authenticator) []protocol.CredentialDescriptor {
	list := make([]protocol.CredentialDescriptor, len(auths))
	for i, a := range auths {
		c := toCredential(a)
		list[i] = c.Descriptor()
	}
	return list
}
