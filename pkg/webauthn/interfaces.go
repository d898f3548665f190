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
	"context"
)

// MethodWebAuthn names this authentication method to token issuers.
const MethodWebAuthn = "webauthn"

// TokenIssuer is an optional collaborator that mints a session token once a
// ceremony has verified a user. If not provided, results carry no token.
// pkg/session.Issuer implements it.
type TokenIssuer interface {
	// IssueToken creates a token for the verified user. method names the
	// ceremony that verified them.
	IssueToken(ctx context.Context, userID, method string) (string, error)
}
