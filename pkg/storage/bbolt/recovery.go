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
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
)

type recoveryStore struct {
	db *bbolt.DB
}

func (s *recoveryStore) Create(ctx context.Context, k *recovery.Key) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecoveryKeys)
		if b.Get([]byte(k.ID)) != nil {
			return recovery.ErrDuplicateKey
		}
		if err := put(b, []byte(k.ID), k); err != nil {
			return err
		}
		return tx.Bucket(bucketRecoveryIndex).Put(indexKey(k.UserID, []byte(k.ID)), []byte{})
	})
}

// forUser calls fn with each of the user's keys.
func forUser(tx *bbolt.Tx, userID string, fn func(k *recovery.Key) error) error {
	b := tx.Bucket(bucketRecoveryKeys)
	for _, id := range scanIndex(tx.Bucket(bucketRecoveryIndex), userID) {
		k, err := get[recovery.Key](b, id)
		if err != nil {
			return err
		}
		if k == nil {
			continue
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *recoveryStore) ListActive(ctx context.Context, userID string, now time.Time) ([]*recovery.Key, error) {
	var result []*recovery.Key
	err := s.db.View(func(tx *bbolt.Tx) error {
		return forUser(tx, userID, func(k *recovery.Key) error {
			if k.Active(now) {
				result = append(result, k)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *recoveryStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecoveryKeys)
		k, err := get[recovery.Key](b, []byte(id))
		if err != nil {
			return err
		}
		if k == nil || !k.Active(at) {
			return recovery.ErrAlreadyUsed
		}
		k.Used = true
		k.UsedAt = &at
		return put(b, []byte(id), k)
	})
}

func (s *recoveryStore) InvalidateAll(ctx context.Context, userID string, at time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecoveryKeys)
		return forUser(tx, userID, func(k *recovery.Key) error {
			if k.Used {
				return nil
			}
			k.Used = true
			k.UsedAt = &at
			n++
			return put(b, []byte(k.ID), k)
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *recoveryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecoveryKeys)
		idx := tx.Bucket(bucketRecoveryIndex)

		var expired []*recovery.Key
		err := b.ForEach(func(id, _ []byte) error {
			k, err := get[recovery.Key](b, id)
			if err != nil {
				return err
			}
			if !now.Before(k.ExpiresAt) {
				expired = append(expired, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete([]byte(k.ID)); err != nil {
				return err
			}
			if err := idx.Delete(indexKey(k.UserID, []byte(k.ID))); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}
