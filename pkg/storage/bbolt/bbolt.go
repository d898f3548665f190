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

// Package bbolt provides a storage.Backend in a single BBolt file.
//
// Every write runs in one bbolt read-write transaction, and bbolt allows a
// single writer at a time, so the check-and-set operations the stores
// require (challenge take, counter advance, recovery key claim) are atomic
// without further locking.
package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

var (
	bucketUsers              = []byte("users")
	bucketAuthenticators     = []byte("authenticators")
	bucketAuthenticatorIndex = []byte("authenticators_by_user")
	bucketChallenges         = []byte("challenges")
	bucketChallengeIndex     = []byte("challenges_by_user")
	bucketRecoveryKeys       = []byte("recovery_keys")
	bucketRecoveryIndex      = []byte("recovery_keys_by_user")
	bucketAudit              = []byte("audit")

	allBuckets = [][]byte{
		bucketUsers, bucketAuthenticators, bucketAuthenticatorIndex,
		bucketChallenges, bucketChallengeIndex,
		bucketRecoveryKeys, bucketRecoveryIndex, bucketAudit,
	}
)

// Store implements storage.Backend backed by a BBolt database.
type Store struct {
	db *bbolt.DB

	users          *userStore
	authenticators *registry
	challenges     *challengeStore
	recoveryKeys   *recoveryStore
	audit          *auditLog
}

var _ storage.Backend = (*Store)(nil)

// New returns a Backend over db, creating any missing buckets.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		db:             db,
		users:          &userStore{db: db},
		authenticators: &registry{db: db},
		challenges:     &challengeStore{db: db},
		recoveryKeys:   &recoveryStore{db: db},
		audit:          &auditLog{db: db},
	}, nil
}

// Open opens the BBolt database at path and returns a Backend over it.
func Open(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Users() user.Store                      { return s.users }
func (s *Store) Authenticators() authenticator.Registry { return s.authenticators }
func (s *Store) Challenges() challenge.Store            { return s.challenges }
func (s *Store) RecoveryKeys() recovery.Store           { return s.recoveryKeys }
func (s *Store) Audit() storage.AuditLog                { return s.audit }

// Ping runs an empty read transaction.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.View(func(tx *bbolt.Tx) error { return nil }); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrClosed, err)
	}
	return nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database.
func (s *Store) DB() *bbolt.DB {
	return s.db
}

func get[T any](b *bbolt.Bucket, key []byte) (*T, error) {
	data := b.Get(key)
	if data == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
	}
	return &v, nil
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// indexKey builds owner 0x00 id. User IDs never contain NUL bytes in
// practice, and a prefix scan on owner 0x00 cannot match a longer owner.
func indexKey(owner string, id []byte) []byte {
	k := make([]byte, 0, len(owner)+1+len(id))
	k = append(k, owner...)
	k = append(k, 0)
	return append(k, id...)
}

func indexPrefix(owner string) []byte {
	return append([]byte(owner), 0)
}

// scanIndex returns the ids stored under owner in an index bucket.
func scanIndex(b *bbolt.Bucket, owner string) [][]byte {
	prefix := indexPrefix(owner)
	var ids [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		ids = append(ids, append([]byte(nil), k[len(prefix):]...))
	}
	return ids
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
