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

// Package webauthn implements the WebAuthn registration and authentication
// ceremonies that establish device trust for an account.
//
// It wraps the go-webauthn/webauthn library and adds:
//   - Single-use, time-bound challenges owned by pkg/challenge
//   - An authenticator registry with global credential-ID uniqueness and
//     conditional signature counter updates (pkg/authenticator)
//   - Optional session token issuance after a verified ceremony
//   - Audit events and Prometheus metrics for every outcome
//
// # Architecture
//
//  1. Service layer (Service) - ceremony state machines
//  2. Storage layer (user.Store, authenticator.Registry, challenge.Store) -
//     memory, bbolt and postgres implementations under pkg/storage
//  3. HTTP layer (pkg/webauthn/http) - JSON handlers mounted on chi
//
// # Usage
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    UserStore:      user.NewMemoryStore(),
//	    Registry:       authenticator.NewMemoryRegistry(),
//	    ChallengeStore: challenge.NewMemoryStore(),
//	})
//
//	opts, err := svc.BeginRegistration(ctx, "alice", "Alice")
//	// send opts.Creation to the browser, then
//	res, err := svc.CompleteRegistration(ctx, "alice", "YubiKey", parsed)
//
// # Authentication
//
// CompleteAuthentication identifies the account from the credential ID in
// the assertion, never from a client-supplied user ID. The challenge named
// in the client data is consumed before any other check. Signature counters
// must strictly increase unless the authenticator reports zero and has
// never reported anything else.
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts.
package webauthn
