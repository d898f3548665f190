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

package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

type userStore struct {
	db *bbolt.DB
}

func (s *userStore) Get(ctx context.Context, id string) (*user.User, error) {
	var u *user.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		u, err = get[user.User](tx.Bucket(bucketUsers), []byte(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (s *userStore) Create(ctx context.Context, u *user.User) error {
	if err := user.ValidateID(u.ID); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(u.ID)) != nil {
			return user.ErrUserAlreadyExists
		}
		return put(b, []byte(u.ID), u)
	})
}

// List relies on bbolt iterating keys in byte order.
func (s *userStore) List(ctx context.Context) ([]*user.User, error) {
	result := []*user.User{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var u user.User
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
			}
			result = append(result, &u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
