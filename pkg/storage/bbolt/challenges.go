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
	"time"

	"go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
)

// challengeStore keys challenges by kind byte + value. The index maps
// kind byte + user ID to the value of that user's live challenge.
type challengeStore struct {
	db *bbolt.DB
}

func kindKey(kind challenge.Kind, s string) []byte {
	return append([]byte{byte(kind)}, s...)
}

func (s *challengeStore) Put(ctx context.Context, c *challenge.Challenge) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		if c.UserID != "" {
			idx := tx.Bucket(bucketChallengeIndex)
			ik := kindKey(c.Kind, c.UserID)
			if prev := idx.Get(ik); prev != nil {
				if err := b.Delete(kindKey(c.Kind, string(prev))); err != nil {
					return err
				}
			}
			if err := idx.Put(ik, []byte(c.Value)); err != nil {
				return err
			}
		}
		return put(b, kindKey(c.Kind, c.Value), c)
	})
}

func (s *challengeStore) Take(ctx context.Context, kind challenge.Kind, userID string) (*challenge.Challenge, error) {
	var c *challenge.Challenge
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketChallengeIndex)
		ik := kindKey(kind, userID)
		value := idx.Get(ik)
		if value == nil {
			return challenge.ErrExpiredOrMissing
		}
		key := kindKey(kind, string(value))
		if err := idx.Delete(ik); err != nil {
			return err
		}
		return s.take(tx, key, &c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *challengeStore) TakeValue(ctx context.Context, kind challenge.Kind, value string) (*challenge.Challenge, error) {
	var c *challenge.Challenge
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := s.take(tx, kindKey(kind, value), &c); err != nil {
			return err
		}
		if c.UserID == "" {
			return nil
		}
		idx := tx.Bucket(bucketChallengeIndex)
		ik := kindKey(kind, c.UserID)
		if string(idx.Get(ik)) == value {
			return idx.Delete(ik)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *challengeStore) take(tx *bbolt.Tx, key []byte, out **challenge.Challenge) error {
	b := tx.Bucket(bucketChallenges)
	c, err := get[challenge.Challenge](b, key)
	if err != nil {
		return err
	}
	if c == nil {
		return challenge.ErrExpiredOrMissing
	}
	*out = c
	return b.Delete(key)
}

func (s *challengeStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		idx := tx.Bucket(bucketChallengeIndex)

		var expired []*challenge.Challenge
		err := b.ForEach(func(k, _ []byte) error {
			c, err := get[challenge.Challenge](b, k)
			if err != nil {
				return err
			}
			if c.Expired(now) {
				expired = append(expired, c)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, c := range expired {
			if err := b.Delete(kindKey(c.Kind, c.Value)); err != nil {
				return err
			}
			if c.UserID != "" {
				ik := kindKey(c.Kind, c.UserID)
				if string(idx.Get(ik)) == c.Value {
					if err := idx.Delete(ik); err != nil {
						return err
					}
				}
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}
