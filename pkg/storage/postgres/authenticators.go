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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
)

const authenticatorColumns = `credential_id, user_id, public_key, sign_count, device_type, backed_up,
		transports, device_name, aaguid, attestation_type, user_verified, created_at, last_used_at`

type registry struct {
	db DBTX
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthenticator(row scanner) (*authenticator.Authenticator, error) {
	var (
		a          authenticator.Authenticator
		signCount  int64
		deviceType string
		transports string
		lastUsed   sql.NullTime
	)
	err := row.Scan(&a.CredentialID, &a.UserID, &a.PublicKey, &signCount, &deviceType, &a.BackedUp,
		&transports, &a.DeviceName, &a.AAGUID, &a.AttestationType, &a.UserVerified, &a.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	a.SignCount = uint32(signCount)
	a.DeviceType = authenticator.DeviceType(deviceType)
	if transports != "" {
		for _, t := range strings.Split(transports, ",") {
			a.Transports = append(a.Transports, authenticator.Transport(t))
		}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.LastUsedAt = timePtr(lastUsed)
	return &a, nil
}

func joinTransports(ts []authenticator.Transport) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func (r *registry) ListForUser(ctx context.Context, userID string) ([]*authenticator.Authenticator, error) {
	query := `
		SELECT ` + authenticatorColumns + `
		FROM authenticators
		WHERE user_id = $1
		ORDER BY created_at, credential_id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	result := []*authenticator.Authenticator{}
	for rows.Next() {
		a, err := scanAuthenticator(rows)
		if err != nil {
			return nil, dbError(err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return result, nil
}

func (r *registry) FindByCredentialID(ctx context.Context, credentialID []byte) (*authenticator.Authenticator, error) {
	query := `
		SELECT ` + authenticatorColumns + `
		FROM authenticators
		WHERE credential_id = $1
	`
	a, err := scanAuthenticator(r.db.QueryRowContext(ctx, query, credentialID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authenticator.ErrNotFound
		}
		return nil, dbError(err)
	}
	return a, nil
}

func (r *registry) Create(ctx context.Context, a *authenticator.Authenticator) error {
	if err := a.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO authenticators (` + authenticatorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.CredentialID, a.UserID, a.PublicKey, int64(a.SignCount), string(a.DeviceType), a.BackedUp,
		joinTransports(a.Transports), a.DeviceName, a.AAGUID, a.AttestationType, a.UserVerified,
		a.CreatedAt, nullTime(a.LastUsedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return authenticator.ErrDuplicateCredential
		}
		return dbError(err)
	}
	return nil
}

// UpdateCounter advances the counter only when the stored value is lower.
// When nothing was updated the row is probed to tell a missing
// authenticator from a regression.
func (r *registry) UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32, backedUp bool, usedAt time.Time) error {
	query := `
		UPDATE authenticators
		SET sign_count = $2, backed_up = $3, last_used_at = $4
		WHERE credential_id = $1 AND sign_count < $2
	`
	res, err := r.db.ExecContext(ctx, query, credentialID, int64(newCount), backedUp, usedAt)
	if err != nil {
		return dbError(err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.owner(ctx, credentialID); err != nil {
		return err
	}
	return authenticator.ErrCounterRegression
}

func (r *registry) Touch(ctx context.Context, credentialID []byte, backedUp bool, usedAt time.Time) error {
	query := `
		UPDATE authenticators
		SET backed_up = $2, last_used_at = $3
		WHERE credential_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, credentialID, backedUp, usedAt)
	if err != nil {
		return dbError(err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return authenticator.ErrNotFound
	}
	return nil
}

func (r *registry) Rename(ctx context.Context, credentialID []byte, requestingUserID, name string) error {
	query := `
		UPDATE authenticators
		SET device_name = $3
		WHERE credential_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, credentialID, requestingUserID, name)
	if err != nil {
		return dbError(err)
	}
	return r.checkOwned(ctx, res, credentialID)
}

func (r *registry) Delete(ctx context.Context, credentialID []byte, requestingUserID string) error {
	query := `
		DELETE FROM authenticators
		WHERE credential_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, credentialID, requestingUserID)
	if err != nil {
		return dbError(err)
	}
	return r.checkOwned(ctx, res, credentialID)
}

// checkOwned maps a zero-row owner-scoped write to ErrNotFound or
// ErrNotAuthorized.
func (r *registry) checkOwned(ctx context.Context, res sql.Result, credentialID []byte) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.owner(ctx, credentialID); err != nil {
		return err
	}
	return authenticator.ErrNotAuthorized
}

func (r *registry) owner(ctx context.Context, credentialID []byte) (string, error) {
	query := `
		SELECT user_id FROM authenticators
		WHERE credential_id = $1
	`
	var userID string
	if err := r.db.QueryRowContext(ctx, query, credentialID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authenticator.ErrNotFound
		}
		return "", dbError(err)
	}
	return userID, nil
}
