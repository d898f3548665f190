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

	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
)

// registry keys authenticators by raw credential ID, so a duplicate ID is
// detected regardless of owner.
type registry struct {
	db *bbolt.DB
}

func (r *registry) ListForUser(ctx context.Context, userID string) ([]*authenticator.Authenticator, error) {
	result := []*authenticator.Authenticator{}
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAuthenticators)
		for _, id := range scanIndex(tx.Bucket(bucketAuthenticatorIndex), userID) {
			a, err := get[authenticator.Authenticator](b, id)
			if err != nil {
				return err
			}
			if a != nil {
				result = append(result, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *registry) FindByCredentialID(ctx context.Context, credentialID []byte) (*authenticator.Authenticator, error) {
	var a *authenticator.Authenticator
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		a, err = get[authenticator.Authenticator](tx.Bucket(bucketAuthenticators), credentialID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, authenticator.ErrNotFound
	}
	return a, nil
}

func (r *registry) Create(ctx context.Context, a *authenticator.Authenticator) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAuthenticators)
		if b.Get(a.CredentialID) != nil {
			return authenticator.ErrDuplicateCredential
		}
		if err := put(b, a.CredentialID, a); err != nil {
			return err
		}
		return tx.Bucket(bucketAuthenticatorIndex).Put(indexKey(a.UserID, a.CredentialID), []byte{})
	})
}

// update loads the authenticator, applies fn and writes it back in one
// transaction. fn returning an error aborts without writing.
func (r *registry) update(credentialID []byte, fn func(a *authenticator.Authenticator) error) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAuthenticators)
		a, err := get[authenticator.Authenticator](b, credentialID)
		if err != nil {
			return err
		}
		if a == nil {
			return authenticator.ErrNotFound
		}
		if err := fn(a); err != nil {
			return err
		}
		return put(b, credentialID, a)
	})
}

func (r *registry) UpdateCounter(ctx context.Context, credentialID []byte, newCount uint32, backedUp bool, usedAt time.Time) error {
	return r.update(credentialID, func(a *authenticator.Authenticator) error {
		if newCount <= a.SignCount {
			return authenticator.ErrCounterRegression
		}
		a.SignCount = newCount
		a.BackedUp = backedUp
		a.LastUsedAt = &usedAt
		return nil
	})
}

func (r *registry) Touch(ctx context.Context, credentialID []byte, backedUp bool, usedAt time.Time) error {
	return r.update(credentialID, func(a *authenticator.Authenticator) error {
		a.BackedUp = backedUp
		a.LastUsedAt = &usedAt
		return nil
	})
}

func (r *registry) Rename(ctx context.Context, credentialID []byte, requestingUserID, name string) error {
	return r.update(credentialID, func(a *authenticator.Authenticator) error {
		if a.UserID != requestingUserID {
			return authenticator.ErrNotAuthorized
		}
		a.DeviceName = name
		return nil
	})
}

func (r *registry) Delete(ctx context.Context, credentialID []byte, requestingUserID string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAuthenticators)
		a, err := get[authenticator.Authenticator](b, credentialID)
		if err != nil {
			return err
		}
		if a == nil {
			return authenticator.ErrNotFound
		}
		if a.UserID != requestingUserID {
			return authenticator.ErrNotAuthorized
		}
		if err := b.Delete(credentialID); err != nil {
			return err
		}
		return tx.Bucket(bucketAuthenticatorIndex).Delete(indexKey(a.UserID, credentialID))
	})
}
