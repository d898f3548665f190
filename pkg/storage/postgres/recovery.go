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
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
)

type recoveryStore struct {
	db DBTX
}

func (s *recoveryStore) Create(ctx context.Context, k *recovery.Key) error {
	query := `
		INSERT INTO recovery_keys (id, user_id, hash, salt, created_at, expires_at, used, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		k.ID, k.UserID, k.Hash, k.Salt, k.CreatedAt, k.ExpiresAt, k.Used, nullTime(k.UsedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return recovery.ErrDuplicateKey
		}
		return dbError(err)
	}
	return nil
}

func (s *recoveryStore) ListActive(ctx context.Context, userID string, now time.Time) ([]*recovery.Key, error) {
	query := `
		SELECT id, user_id, hash, salt, created_at, expires_at
		FROM recovery_keys
		WHERE user_id = $1 AND NOT used AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var result []*recovery.Key
	for rows.Next() {
		k := &recovery.Key{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.Hash, &k.Salt, &k.CreatedAt, &k.ExpiresAt); err != nil {
			return nil, dbError(err)
		}
		k.CreatedAt = k.CreatedAt.UTC()
		k.ExpiresAt = k.ExpiresAt.UTC()
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return result, nil
}

// MarkUsed claims the key in one conditional UPDATE. Concurrent claims
// serialize on the row lock and only the first sees it unused.
func (s *recoveryStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE recovery_keys
		SET used = TRUE, used_at = $2
		WHERE id = $1 AND NOT used AND expires_at > $2
	`
	res, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return dbError(err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return recovery.ErrAlreadyUsed
	}
	return nil
}

func (s *recoveryStore) InvalidateAll(ctx context.Context, userID string, at time.Time) (int, error) {
	query := `
		UPDATE recovery_keys
		SET used = TRUE, used_at = $2
		WHERE user_id = $1 AND NOT used
	`
	res, err := s.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, dbError(err)
	}
	return affected(res)
}

func (s *recoveryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		DELETE FROM recovery_keys
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, dbError(err)
	}
	return affected(res)
}
