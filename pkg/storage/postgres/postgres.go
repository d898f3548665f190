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

// Package postgres provides a storage.Backend on PostgreSQL through the pgx
// database/sql driver. The schema is managed by goose with embedded
// migrations.
//
// Conditional writes are single statements (UPDATE ... WHERE, DELETE ...
// RETURNING), so the check and the write cannot interleave with another
// connection.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage/postgres/migrations"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// codeUniqueViolation is the SQLSTATE for unique_violation.
const codeUniqueViolation = "23505"

// DBTX is the subset of database/sql used by the stores.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Backend backed by PostgreSQL.
type Store struct {
	db *sql.DB

	users          *userStore
	authenticators *registry
	challenges     *challengeStore
	recoveryKeys   *recoveryStore
	audit          *auditLog
}

var _ storage.Backend = (*Store)(nil)

// New returns a Backend over db. It does not run migrations.
func New(db *sql.DB) *Store {
	return &Store{
		db:             db,
		users:          &userStore{db: db},
		authenticators: &registry{db: db},
		challenges:     &challengeStore{db: db},
		recoveryKeys:   &recoveryStore{db: db},
		audit:          &auditLog{db: db},
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return New(db), nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *Store) Users() user.Store                      { return s.users }
func (s *Store) Authenticators() authenticator.Registry { return s.authenticators }
func (s *Store) Challenges() challenge.Store            { return s.challenges }
func (s *Store) RecoveryKeys() recovery.Store           { return s.recoveryKeys }
func (s *Store) Audit() storage.AuditLog                { return s.audit }

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx begins a transaction, runs fn with it and commits on success or
// rolls back on error or panic. Panics are rethrown.
func withTx(ctx context.Context, db *sql.DB, fn func(tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func dbError(err error) error {
	return fmt.Errorf("db error: %w", err)
}

// nullString stores "" as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError(err)
	}
	return int(n), nil
}
