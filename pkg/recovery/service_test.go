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

package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
)

var testParams = Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubIssuer struct{}

func (stubIssuer) IssueToken(_ context.Context, userID, method string) (string, error) {
	return "token-" + userID + "-" + method, nil
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	clock *fakeClock
	sink  *audit.MemorySink
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Argon2id = testParams
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	sink := audit.NewMemorySink()
	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Store:       store,
		TokenIssuer: stubIssuer{},
		Audit:       audit.NewRecorder(sink, logging.Discard()),
		Logger:      logging.Discard(),
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, clock: clock, sink: sink}
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(ServiceParams{Store: NewMemoryStore()})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{Config: &Config{}})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{
		Config: &Config{Argon2id: Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 8}},
		Store:  NewMemoryStore(),
	})
	assert.Error(t, err)

	cfg := &Config{}
	_, err = NewService(ServiceParams{Config: cfg, Store: NewMemoryStore()})
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, cfg.TTL)
	assert.Equal(t, DefaultArgon2idParams(), cfg.Argon2id)
}

func TestGenerate_Format(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, key)

	keys, err := f.store.ListActive(ctx, "alice", f.clock.Now())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Len(t, keys[0].Salt, SaltSize)
	assert.Len(t, keys[0].Hash, int(testParams.KeyLen))
	assert.NotContains(t, string(keys[0].Hash), strings.ReplaceAll(key, "-", ""))
	assert.Equal(t, f.clock.Now().Add(DefaultTTL), keys[0].ExpiresAt)

	assert.Len(t, f.sink.OfType(audit.RecoveryGenerated), 1)
}

func TestGenerate_RequiresUser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestVerify_NormalizedInputIsOneShot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	sloppy := " " + strings.ToLower(strings.ReplaceAll(key, "-", "")) + " "
	res, err := f.svc.Verify(ctx, "alice", sloppy)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "alice", res.UserID)
	assert.Equal(t, "token-alice-recovery_key", res.Token)

	_, err = f.svc.Verify(ctx, "alice", key)
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Len(t, f.sink.OfType(audit.RecoveryVerified), 1)
	assert.Len(t, f.sink.OfType(audit.RecoveryFailed), 1)
}

func TestVerify_Failures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		input  string
	}{
		{"wrong key", "alice", "AAAA-AAAA-AAAA-AAAA"},
		{"too short", "alice", key[:10]},
		{"too long", "alice", key + "A"},
		{"empty", "alice", ""},
		{"other user", "bob", key},
		{"no user", "", key},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.Verify(ctx, tt.userID, tt.input)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	// None of the failures consumed the key.
	_, err = f.svc.Verify(ctx, "alice", key)
	assert.NoError(t, err)
}

func TestVerify_Expired(t *testing.T) {
	f := newFixture(t, &Config{TTL: time.Hour})
	ctx := context.Background()

	key, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Verify(ctx, "alice", key)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	const n = 8
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(ctx, "alice", key)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrInvalid):
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), losses.Load())
}

func TestGenerate_InvalidatesPrevious(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "alice", first)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = f.svc.Verify(ctx, "alice", second)
	assert.NoError(t, err)
}

func TestGenerate_KeepPrevious(t *testing.T) {
	f := newFixture(t, &Config{KeepPrevious: true})
	ctx := context.Background()

	first, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	second, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "alice", first)
	assert.NoError(t, err)
	_, err = f.svc.Verify(ctx, "alice", second)
	assert.NoError(t, err)
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t, &Config{KeepPrevious: true})
	ctx := context.Background()

	a, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	b, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	bobKey, err := f.svc.Generate(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, f.svc.Invalidate(ctx, "alice"))

	for _, k := range []string{a, b} {
		_, err = f.svc.Verify(ctx, "alice", k)
		assert.ErrorIs(t, err, ErrInvalid)
	}
	_, err = f.svc.Verify(ctx, "bob", bobKey)
	assert.NoError(t, err)

	events := f.sink.OfType(audit.RecoveryInvalidated)
	require.Len(t, events, 1)
	assert.Equal(t, "count=2", events[0].Detail)

	assert.ErrorIs(t, f.svc.Invalidate(ctx, ""), ErrUserIDRequired)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, &Config{TTL: time.Hour, KeepPrevious: true})
	ctx := context.Background()

	_, err := f.svc.Generate(ctx, "alice")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, err = f.svc.Generate(ctx, "bob")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	n, err := f.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.Count())
}
