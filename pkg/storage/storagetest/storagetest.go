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

// Package storagetest is a conformance suite for storage.Backend
// implementations.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run runs the whole suite against backends from newBackend.
func Run(t *testing.T, newBackend Factory) {
	open := func(t *testing.T) storage.Backend {
		b := newBackend(t)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}

	t.Run("Ping", func(t *testing.T) { require.NoError(t, open(t).Ping(context.Background())) })
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t).Users()) })
	t.Run("Authenticators", func(t *testing.T) { testAuthenticators(t, open(t).Authenticators()) })
	t.Run("AuthenticatorCounterRace", func(t *testing.T) { testCounterRace(t, open(t).Authenticators()) })
	t.Run("Challenges", func(t *testing.T) { testChallenges(t, open(t).Challenges()) })
	t.Run("ChallengeTakeRace", func(t *testing.T) { testTakeRace(t, open(t).Challenges()) })
	t.Run("RecoveryKeys", func(t *testing.T) { testRecoveryKeys(t, open(t).RecoveryKeys()) })
	t.Run("RecoveryMarkUsedRace", func(t *testing.T) { testMarkUsedRace(t, open(t).RecoveryKeys()) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, open(t).Audit()) })
}

// base is truncated so that every backend round-trips it exactly.
var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testUsers(t *testing.T, s user.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "alice")
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	for _, id := range []string{"bob", "alice"} {
		require.NoError(t, s.Create(ctx, &user.User{ID: id, Name: id + "@example.com", DisplayName: id, CreatedAt: base}))
	}
	assert.ErrorIs(t, s.Create(ctx, &user.User{ID: "alice"}), user.ErrUserAlreadyExists)
	assert.ErrorIs(t, s.Create(ctx, &user.User{ID: ""}), user.ErrInvalidUserID)

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Name)
	assert.Equal(t, "alice", got.DisplayName)
	assert.True(t, base.Equal(got.CreatedAt))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].ID)
	assert.Equal(t, "bob", all[1].ID)
}

func newAuthenticator(id byte, userID string, created time.Time) *authenticator.Authenticator {
	return &authenticator.Authenticator{
		CredentialID: []byte{id, 0xAA, 0xBB},
		UserID:       userID,
		PublicKey:    []byte{0xA5, 0x01, 0x02, id},
		SignCount:    5,
		DeviceType:   authenticator.DeviceMulti,
		BackedUp:     true,
		Transports:   []authenticator.Transport{authenticator.TransportInternal, authenticator.TransportHybrid},
		DeviceName:   fmt.Sprintf("device-%d", id),
		AAGUID:       make([]byte, 16),
		UserVerified: true,
		CreatedAt:    created,
	}
}

func testAuthenticators(t *testing.T, r authenticator.Registry) {
	ctx := context.Background()

	none, err := r.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, none)

	second := newAuthenticator(2, "alice", base.Add(time.Minute))
	first := newAuthenticator(1, "alice", base)
	require.NoError(t, r.Create(ctx, second))
	require.NoError(t, r.Create(ctx, first))
	require.NoError(t, r.Create(ctx, newAuthenticator(3, "bob", base)))

	t.Run("Uniqueness across users", func(t *testing.T) {
		dup := newAuthenticator(1, "bob", base)
		assert.ErrorIs(t, r.Create(ctx, dup), authenticator.ErrDuplicateCredential)
	})

	t.Run("Incomplete record", func(t *testing.T) {
		assert.ErrorIs(t, r.Create(ctx, &authenticator.Authenticator{CredentialID: []byte{9}}), authenticator.ErrInvalid)
	})

	t.Run("Find", func(t *testing.T) {
		got, err := r.FindByCredentialID(ctx, first.CredentialID)
		require.NoError(t, err)
		assert.Equal(t, first.UserID, got.UserID)
		assert.Equal(t, first.PublicKey, got.PublicKey)
		assert.Equal(t, first.Transports, got.Transports)
		assert.Equal(t, authenticator.DeviceMulti, got.DeviceType)
		assert.True(t, got.BackedUp)
		assert.Nil(t, got.LastUsedAt)

		_, err = r.FindByCredentialID(ctx, []byte("missing"))
		assert.ErrorIs(t, err, authenticator.ErrNotFound)
	})

	t.Run("List ordered by creation", func(t *testing.T) {
		list, err := r.ListForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.CredentialID, list[0].CredentialID)
		assert.Equal(t, second.CredentialID, list[1].CredentialID)
	})

	t.Run("Counter only advances", func(t *testing.T) {
		usedAt := base.Add(time.Hour)
		require.NoError(t, r.UpdateCounter(ctx, first.CredentialID, 6, false, usedAt))
		assert.ErrorIs(t, r.UpdateCounter(ctx, first.CredentialID, 6, true, usedAt), authenticator.ErrCounterRegression)
		assert.ErrorIs(t, r.UpdateCounter(ctx, first.CredentialID, 2, true, usedAt), authenticator.ErrCounterRegression)
		assert.ErrorIs(t, r.UpdateCounter(ctx, []byte("missing"), 9, true, usedAt), authenticator.ErrNotFound)

		got, err := r.FindByCredentialID(ctx, first.CredentialID)
		require.NoError(t, err)
		assert.Equal(t, uint32(6), got.SignCount)
		assert.False(t, got.BackedUp, "backup state follows the accepted assertion")
		require.NotNil(t, got.LastUsedAt)
		assert.True(t, usedAt.Equal(*got.LastUsedAt))
	})

	t.Run("Touch", func(t *testing.T) {
		usedAt := base.Add(2 * time.Hour)
		require.NoError(t, r.Touch(ctx, second.CredentialID, false, usedAt))
		got, err := r.FindByCredentialID(ctx, second.CredentialID)
		require.NoError(t, err)
		assert.Equal(t, uint32(5), got.SignCount)
		assert.False(t, got.BackedUp)
		require.NotNil(t, got.LastUsedAt)
		assert.True(t, usedAt.Equal(*got.LastUsedAt))
		assert.ErrorIs(t, r.Touch(ctx, []byte("missing"), false, usedAt), authenticator.ErrNotFound)
	})

	t.Run("Rename checks ownership", func(t *testing.T) {
		assert.ErrorIs(t, r.Rename(ctx, first.CredentialID, "bob", "stolen"), authenticator.ErrNotAuthorized)
		require.NoError(t, r.Rename(ctx, first.CredentialID, "alice", "Laptop"))
		got, err := r.FindByCredentialID(ctx, first.CredentialID)
		require.NoError(t, err)
		assert.Equal(t, "Laptop", got.DeviceName)
		assert.ErrorIs(t, r.Rename(ctx, []byte("missing"), "alice", "x"), authenticator.ErrNotFound)
	})

	t.Run("Delete checks ownership", func(t *testing.T) {
		assert.ErrorIs(t, r.Delete(ctx, first.CredentialID, "bob"), authenticator.ErrNotAuthorized)
		require.NoError(t, r.Delete(ctx, first.CredentialID, "alice"))
		assert.ErrorIs(t, r.Delete(ctx, first.CredentialID, "alice"), authenticator.ErrNotFound)

		list, err := r.ListForUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, second.CredentialID, list[0].CredentialID)

		// the freed credential ID can be registered again
		require.NoError(t, r.Create(ctx, newAuthenticator(1, "bob", base)))
	})
}

func testCounterRace(t *testing.T, r authenticator.Registry) {
	ctx := context.Background()
	a := newAuthenticator(7, "alice", base)
	require.NoError(t, r.Create(ctx, a))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.UpdateCounter(ctx, a.CredentialID, 10, false, base) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func newChallenge(t *testing.T, kind challenge.Kind, userID string, expires time.Time) *challenge.Challenge {
	t.Helper()
	_, value, err := challenge.NewValue()
	require.NoError(t, err)
	return &challenge.Challenge{
		Value:     value,
		Kind:      kind,
		UserID:    userID,
		Payload:   []byte(`{"challenge":"` + value + `"}`),
		CreatedAt: expires.Add(-5 * time.Minute),
		ExpiresAt: expires,
	}
}

func testChallenges(t *testing.T, s challenge.Store) {
	ctx := context.Background()
	live := base.Add(time.Hour)

	t.Run("Take is single use", func(t *testing.T) {
		c := newChallenge(t, challenge.KindRegistration, "alice", live)
		require.NoError(t, s.Put(ctx, c))

		got, err := s.Take(ctx, challenge.KindRegistration, "alice")
		require.NoError(t, err)
		assert.Equal(t, c.Value, got.Value)
		assert.Equal(t, c.Payload, got.Payload)
		assert.True(t, c.ExpiresAt.Equal(got.ExpiresAt))

		_, err = s.Take(ctx, challenge.KindRegistration, "alice")
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)
		_, err = s.TakeValue(ctx, challenge.KindRegistration, c.Value)
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)
	})

	t.Run("Put replaces per user and kind", func(t *testing.T) {
		old := newChallenge(t, challenge.KindAuthentication, "alice", live)
		fresh := newChallenge(t, challenge.KindAuthentication, "alice", live)
		reg := newChallenge(t, challenge.KindRegistration, "alice", live)
		require.NoError(t, s.Put(ctx, old))
		require.NoError(t, s.Put(ctx, reg))
		require.NoError(t, s.Put(ctx, fresh))

		_, err := s.TakeValue(ctx, challenge.KindAuthentication, old.Value)
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)

		got, err := s.Take(ctx, challenge.KindAuthentication, "alice")
		require.NoError(t, err)
		assert.Equal(t, fresh.Value, got.Value)

		got, err = s.Take(ctx, challenge.KindRegistration, "alice")
		require.NoError(t, err)
		assert.Equal(t, reg.Value, got.Value)
	})

	t.Run("Discoverable by value", func(t *testing.T) {
		a := newChallenge(t, challenge.KindAuthentication, "", live)
		b := newChallenge(t, challenge.KindAuthentication, "", live)
		require.NoError(t, s.Put(ctx, a))
		require.NoError(t, s.Put(ctx, b))

		_, err := s.TakeValue(ctx, challenge.KindRegistration, a.Value)
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)

		got, err := s.TakeValue(ctx, challenge.KindAuthentication, a.Value)
		require.NoError(t, err)
		assert.Empty(t, got.UserID)

		got, err = s.TakeValue(ctx, challenge.KindAuthentication, b.Value)
		require.NoError(t, err)
		assert.Equal(t, b.Value, got.Value)
	})

	t.Run("TakeValue clears the user slot", func(t *testing.T) {
		c := newChallenge(t, challenge.KindAuthentication, "bob", live)
		require.NoError(t, s.Put(ctx, c))
		_, err := s.TakeValue(ctx, challenge.KindAuthentication, c.Value)
		require.NoError(t, err)
		_, err = s.Take(ctx, challenge.KindAuthentication, "bob")
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		expired := newChallenge(t, challenge.KindRegistration, "carol", base)
		boundary := newChallenge(t, challenge.KindAuthentication, "", base.Add(time.Minute))
		keep := newChallenge(t, challenge.KindAuthentication, "carol", live)
		for _, c := range []*challenge.Challenge{expired, boundary, keep} {
			require.NoError(t, s.Put(ctx, c))
		}

		n, err := s.DeleteExpired(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.Take(ctx, challenge.KindRegistration, "carol")
		assert.ErrorIs(t, err, challenge.ErrExpiredOrMissing)
		got, err := s.Take(ctx, challenge.KindAuthentication, "carol")
		require.NoError(t, err)
		assert.Equal(t, keep.Value, got.Value)
	})
}

func testTakeRace(t *testing.T, s challenge.Store) {
	ctx := context.Background()
	c := newChallenge(t, challenge.KindAuthentication, "", base.Add(time.Hour))
	require.NoError(t, s.Put(ctx, c))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeValue(ctx, challenge.KindAuthentication, c.Value); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func newKey(id, userID string, created time.Time) *recovery.Key {
	return &recovery.Key{
		ID:        id,
		UserID:    userID,
		Hash:      []byte("hash-" + id),
		Salt:      []byte("salt-" + id),
		CreatedAt: created,
		ExpiresAt: created.Add(recovery.DefaultTTL),
	}
}

func testRecoveryKeys(t *testing.T, s recovery.Store) {
	ctx := context.Background()
	now := base.Add(time.Hour)

	older := newKey("k1", "alice", base)
	newer := newKey("k2", "alice", base.Add(time.Minute))
	expired := newKey("k3", "alice", base.Add(-2*recovery.DefaultTTL))
	other := newKey("k4", "bob", base)
	for _, k := range []*recovery.Key{older, newer, expired, other} {
		require.NoError(t, s.Create(ctx, k))
	}
	assert.ErrorIs(t, s.Create(ctx, newKey("k1", "alice", base)), recovery.ErrDuplicateKey)

	active, err := s.ListActive(ctx, "alice", now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "k2", active[0].ID)
	assert.Equal(t, "k1", active[1].ID)
	assert.Equal(t, newer.Hash, active[0].Hash)
	assert.Equal(t, newer.Salt, active[0].Salt)

	t.Run("MarkUsed once", func(t *testing.T) {
		require.NoError(t, s.MarkUsed(ctx, "k2", now))
		assert.ErrorIs(t, s.MarkUsed(ctx, "k2", now), recovery.ErrAlreadyUsed)
		assert.ErrorIs(t, s.MarkUsed(ctx, "k3", now), recovery.ErrAlreadyUsed)
		assert.ErrorIs(t, s.MarkUsed(ctx, "missing", now), recovery.ErrAlreadyUsed)

		active, err := s.ListActive(ctx, "alice", now)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "k1", active[0].ID)
	})

	t.Run("InvalidateAll", func(t *testing.T) {
		n, err := s.InvalidateAll(ctx, "alice", now)
		require.NoError(t, err)
		// k1 and the expired but unused k3
		assert.Equal(t, 2, n)

		active, err := s.ListActive(ctx, "alice", now)
		require.NoError(t, err)
		assert.Empty(t, active)

		active, err = s.ListActive(ctx, "bob", now)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		n, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.DeleteExpired(ctx, base.Add(recovery.DefaultTTL+time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func testMarkUsedRace(t *testing.T, s recovery.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newKey("race", "alice", base)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkUsed(ctx, "race", base.Add(time.Minute)) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testAudit(t *testing.T, log storage.AuditLog) {
	ctx := context.Background()

	events := []audit.Event{
		{ID: "e1", Type: audit.RegistrationVerified, UserID: "alice", OccurredAt: base},
		{ID: "e2", Type: audit.AuthenticationFailed, UserID: "bob", Detail: "bad signature", OccurredAt: base.Add(time.Second)},
		{ID: "e3", Type: audit.RecoveryVerified, UserID: "alice", CorrelationID: "req-1", OccurredAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, log.Record(ctx, e))
	}

	all, err := log.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID)
	assert.Equal(t, "req-1", all[0].CorrelationID)
	assert.True(t, all[0].OccurredAt.Equal(events[2].OccurredAt))

	alice, err := log.Recent(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "e3", alice[0].ID)

	bob, err := log.Recent(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, audit.AuthenticationFailed, bob[0].Type)
	assert.Equal(t, "bad signature", bob[0].Detail)
}
