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

	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

type userStore struct {
	db DBTX
}

func (s *userStore) Get(ctx context.Context, id string) (*user.User, error) {
	query := `
		SELECT id, name, display_name, created_at
		FROM users
		WHERE id = $1
	`
	u := &user.User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, dbError(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *userStore) Create(ctx context.Context, u *user.User) error {
	if err := user.ValidateID(u.ID); err != nil {
		return err
	}
	query := `
		INSERT INTO users (id, name, display_name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.DisplayName, u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return user.ErrUserAlreadyExists
		}
		return dbError(err)
	}
	return nil
}

func (s *userStore) List(ctx context.Context) ([]*user.User, error) {
	query := `
		SELECT id, name, display_name, created_at
		FROM users
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	result := []*user.User{}
	for rows.Next() {
		u := &user.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, dbError(err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return result, nil
}
