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

// Package http provides composable HTTP handlers for device trust:
// WebAuthn registration and authentication, recovery keys and
// authenticator management.
//
// # Usage
//
//	handler := webauthnhttp.NewHandler(svc).
//	    WithRecovery(recoverySvc, users).
//	    WithTokenVerifier(issuer)
//
//	r.Route("/api/v1", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
//
// # Endpoints
//
//	POST   /webauthn/registration/options               - Start registration
//	POST   /webauthn/registration/verify                - Complete registration
//	POST   /webauthn/authentication/options             - Start authentication
//	POST   /webauthn/authentication/verify              - Complete authentication
//	POST   /recovery/generate                           - Issue a recovery key
//	POST   /recovery/verify                             - Redeem a recovery key
//	POST   /recovery/invalidate                         - Revoke all recovery keys
//	GET    /users/{userId}/authenticators               - List authenticators
//	PATCH  /users/{userId}/authenticators/{credentialId} - Rename an authenticator
//	DELETE /users/{userId}/authenticators/{credentialId} - Remove an authenticator
//
// Credential IDs in paths are unpadded base64url.
//
// # Authorization
//
// With a TokenVerifier configured, recovery generate and invalidate and the
// /users routes require "Authorization: Bearer <token>" where the token
// subject is the target user. Registration needs the same token once the
// account has an authenticator; an account without one may enroll its
// first device without a token.
//
// # Response Format
//
// All responses are JSON. Error responses have the format:
//
//	{
//	    "error": "error_code",
//	    "message": "Human-readable message"
//	}
//
// Failed verifications return 401 with the message "authentication failed"
// regardless of cause.
package http
