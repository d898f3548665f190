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
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
)

type challengeStore struct {
	db *sql.DB
}

// Put replaces the user's previous challenge of the same kind in the same
// transaction as the insert.
func (s *challengeStore) Put(ctx context.Context, c *challenge.Challenge) error {
	return withTx(ctx, s.db, func(tx DBTX) error {
		if c.UserID != "" {
			query := `
				DELETE FROM challenges
				WHERE kind = $1 AND user_id = $2
			`
			if _, err := tx.ExecContext(ctx, query, int16(c.Kind), c.UserID); err != nil {
				return dbError(err)
			}
		}
		query := `
			INSERT INTO challenges (kind, value, user_id, payload, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.ExecContext(ctx, query,
			int16(c.Kind), c.Value, nullString(c.UserID), c.Payload, c.CreatedAt, c.ExpiresAt)
		if err != nil {
			return dbError(err)
		}
		return nil
	})
}

func (s *challengeStore) Take(ctx context.Context, kind challenge.Kind, userID string) (*challenge.Challenge, error) {
	query := `
		DELETE FROM challenges
		WHERE kind = $1 AND user_id = $2
		RETURNING kind, value, user_id, payload, created_at, expires_at
	`
	return scanChallenge(s.db.QueryRowContext(ctx, query, int16(kind), userID))
}

func (s *challengeStore) TakeValue(ctx context.Context, kind challenge.Kind, value string) (*challenge.Challenge, error) {
	query := `
		DELETE FROM challenges
		WHERE kind = $1 AND value = $2
		RETURNING kind, value, user_id, payload, created_at, expires_at
	`
	return scanChallenge(s.db.QueryRowContext(ctx, query, int16(kind), value))
}

func (s *challengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	query := `
		DELETE FROM challenges
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, dbError(err)
	}
	return affected(res)
}

func scanChallenge(row *sql.Row) (*challenge.Challenge, error) {
	var (
		c      challenge.Challenge
		kind   int16
		userID sql.NullString
	)
	err := row.Scan(&kind, &c.Value, &userID, &c.Payload, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, challenge.ErrExpiredOrMissing
		}
		return nil, dbError(err)
	}
	c.Kind = challenge.Kind(kind)
	c.UserID = userID.String
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	return &c, nil
}
