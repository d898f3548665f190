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

package webauthn

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

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

type harness struct {
	svc        *Service
	cfg        *Config
	users      *user.MemoryStore
	registry   *authenticator.MemoryRegistry
	challenges *challenge.MemoryStore
	clock      *fakeClock
	sink       *audit.MemorySink
	rp         virtualwebauthn.RelyingParty
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &Config{
		RPID:            "example.com",
		RPDisplayName:   "Example Corp",
		RPOrigins:       []string{"https://example.com"},
		AutoCreateUsers: true,
	}
	h := &harness{
		cfg:        cfg,
		users:      user.NewMemoryStore(),
		registry:   authenticator.NewMemoryRegistry(),
		challenges: challenge.NewMemoryStore(),
		clock:      &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		sink:       audit.NewMemorySink(),
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
	}
	svc, err := NewService(ServiceParams{
		Config:         cfg,
		UserStore:      h.users,
		Registry:       h.registry,
		ChallengeStore: h.challenges,
		TokenIssuer:    stubIssuer{},
		Audit:          audit.NewRecorder(h.sink, logging.Discard()),
		Logger:         logging.Discard(),
		Clock:          h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func attest(t *testing.T, rp virtualwebauthn.RelyingParty, opts *CeremonyOptions, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *protocol.ParsedCredentialCreationData {
	t.Helper()
	require.NotNil(t, opts.Creation)
	optionsJSON, err := json.Marshal(opts.Creation.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	var ccr protocol.CredentialCreationResponse
	require.NoError(t, json.Unmarshal([]byte(virtualwebauthn.CreateAttestationResponse(rp, auth, cred, *parsedOptions)), &ccr))
	parsed, err := ccr.Parse()
	require.NoError(t, err)
	return parsed
}

func assertion(t *testing.T, rp virtualwebauthn.RelyingParty, opts *CeremonyOptions, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *protocol.ParsedCredentialAssertionData {
	t.Helper()
	require.NotNil(t, opts.Assertion)
	optionsJSON, err := json.Marshal(opts.Assertion.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	var car protocol.CredentialAssertionResponse
	require.NoError(t, json.Unmarshal([]byte(virtualwebauthn.CreateAssertionResponse(rp, auth, cred, *parsedOptions)), &car))
	parsed, err := car.Parse()
	require.NoError(t, err)
	return parsed
}

// register enrolls a new virtual credential for userID.
func (h *harness) register(t *testing.T, userID string) (virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()
	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(userID),
	})
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	opts, err := h.svc.BeginRegistration(context.Background(), userID, "")
	require.NoError(t, err)
	_, err = h.svc.CompleteRegistration(context.Background(), userID, "", attest(t, h.rp, opts, auth, cred))
	require.NoError(t, err)

	auth.AddCredential(cred)
	return auth, cred
}

func TestNewService_Validation(t *testing.T) {
	cfg := validConfig()
	tests := []struct {
		name   string
		params ServiceParams
	}{
		{"missing config", ServiceParams{UserStore: user.NewMemoryStore(), Registry: authenticator.NewMemoryRegistry(), ChallengeStore: challenge.NewMemoryStore()}},
		{"missing user store", ServiceParams{Config: cfg, Registry: authenticator.NewMemoryRegistry(), ChallengeStore: challenge.NewMemoryStore()}},
		{"missing registry", ServiceParams{Config: cfg, UserStore: user.NewMemoryStore(), ChallengeStore: challenge.NewMemoryStore()}},
		{"missing challenge store", ServiceParams{Config: cfg, UserStore: user.NewMemoryStore(), Registry: authenticator.NewMemoryRegistry()}},
		{"invalid config", ServiceParams{Config: &Config{}, UserStore: user.NewMemoryStore(), Registry: authenticator.NewMemoryRegistry(), ChallengeStore: challenge.NewMemoryStore()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.params)
			assert.Error(t, err)
		})
	}
}

func TestRegistration_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	opts, err := h.svc.BeginRegistration(ctx, "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, challenge.KindRegistration, opts.Kind)
	assert.Equal(t, h.clock.Now().Add(challenge.DefaultTTL), opts.ExpiresAt)
	assert.Equal(t, opts.Challenge, opts.Creation.Response.Challenge.String())
	assert.Equal(t, "example.com", opts.Creation.Response.RelyingParty.ID)
	assert.Equal(t, "Alice", opts.Creation.Response.User.DisplayName)
	assert.Empty(t, opts.Creation.Response.CredentialExcludeList)

	u, err := h.users.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)

	res, err := h.svc.CompleteRegistration(ctx, "alice", "YubiKey 5", attest(t, h.rp, opts, auth, cred))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "token-alice-webauthn", res.Token)
	assert.Equal(t, "alice", res.Authenticator.UserID)
	assert.Equal(t, "YubiKey 5", res.Authenticator.DeviceName)
	assert.Equal(t, authenticator.DeviceSingle, res.Authenticator.DeviceType)
	assert.False(t, res.Authenticator.BackedUp)
	assert.Equal(t, uint32(0), res.Authenticator.SignCount)
	assert.Equal(t, h.clock.Now(), res.Authenticator.CreatedAt)
	assert.Equal(t, cred.ID, res.Authenticator.CredentialID)

	stored, err := h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Authenticator.PublicKey, stored.PublicKey)

	events := h.sink.OfType(audit.RegistrationVerified)
	require.Len(t, events, 1)
	assert.Equal(t, stored.ID(), events[0].CredentialID)

	// A second registration excludes the first credential.
	opts, err = h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, opts.Creation.Response.CredentialExcludeList, 1)
	assert.Equal(t, protocol.URLEncodedBase64(cred.ID), opts.Creation.Response.CredentialExcludeList[0].CredentialID)
}

func TestRegistration_DefaultDeviceName(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice")

	auths, err := h.svc.ListAuthenticators(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.Equal(t, DefaultDeviceName, auths[0].DeviceName)
}

func TestRegistration_UnknownUser(t *testing.T) {
	h := newHarness(t)
	h.cfg.AutoCreateUsers = false

	_, err := h.svc.BeginRegistration(context.Background(), "nobody", "")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = h.svc.BeginRegistration(context.Background(), "", "")
	assert.ErrorIs(t, err, user.ErrInvalidUserID)
}

func TestRegistration_ChallengeSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	opts, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	parsed := attest(t, h.rp, opts, auth, cred)

	_, err = h.svc.CompleteRegistration(ctx, "alice", "", parsed)
	require.NoError(t, err)

	_, err = h.svc.CompleteRegistration(ctx, "alice", "", parsed)
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
	assert.Equal(t, 1, h.registry.Count())
}

func TestRegistration_ChallengeExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	opts, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	parsed := attest(t, h.rp, opts, virtualwebauthn.NewAuthenticator(), virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2))

	h.clock.Advance(challenge.DefaultTTL)
	_, err = h.svc.CompleteRegistration(ctx, "alice", "", parsed)
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
	assert.Equal(t, 0, h.registry.Count())

	failed := h.sink.OfType(audit.RegistrationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "challenge_expired_or_missing", failed[0].Detail)
}

func TestRegistration_LatestChallengeWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	first, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	_, err = h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)

	_, err = h.svc.CompleteRegistration(ctx, "alice", "", attest(t, h.rp, first, auth, cred))
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestRegistration_WrongOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	evil := h.rp
	evil.Origin = "https://evil.example.net"

	opts, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	_, err = h.svc.CompleteRegistration(ctx, "alice", "", attest(t, evil, opts, virtualwebauthn.NewAuthenticator(), virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)))
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, 0, h.registry.Count())
}

func TestRegistration_DuplicateCredentialAcrossUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth, cred := h.register(t, "alice")

	opts, err := h.svc.BeginRegistration(ctx, "bob", "")
	require.NoError(t, err)
	_, err = h.svc.CompleteRegistration(ctx, "bob", "", attest(t, h.rp, opts, auth, cred))
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	stored, err := h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)
}

func TestRegistration_NilResponse(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CompleteRegistration(context.Background(), "alice", "", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAuthentication_UserScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	opts, err := h.svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, challenge.KindAuthentication, opts.Kind)
	require.Len(t, opts.Assertion.Response.AllowedCredentials, 1)
	assert.Equal(t, protocol.URLEncodedBase64(cred.ID), opts.Assertion.Response.AllowedCredentials[0].CredentialID)

	h.clock.Advance(10 * time.Second)
	res, err := h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "alice", res.UserID)
	assert.Equal(t, "token-alice-webauthn", res.Token)

	// Counterless authenticator: only the last-used time moves.
	stored, err := h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignCount)
	require.NotNil(t, stored.LastUsedAt)
	assert.Equal(t, h.clock.Now(), *stored.LastUsedAt)

	assert.Len(t, h.sink.OfType(audit.AuthenticationVerified), 1)
}

func TestAuthentication_Discoverable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	opts, err := h.svc.BeginAuthentication(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, opts.Assertion.Response.AllowedCredentials)

	res, err := h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	require.NoError(t, err)
	assert.Equal(t, "alice", res.UserID)
}

func TestAuthentication_CounterAdvancesAndRegresses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	login := func(counter uint32) (*AuthenticationResult, error) {
		cred.Counter = counter
		opts, err := h.svc.BeginAuthentication(ctx, "alice")
		require.NoError(t, err)
		return h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	}

	res, err := login(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), res.Authenticator.SignCount)

	res, err = login(6)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), res.Authenticator.SignCount)

	// Equal counter is a regression.
	_, err = login(6)
	assert.ErrorIs(t, err, ErrCounterRegression)

	// So is a lower one, and so is zero once a counter has been seen.
	_, err = login(3)
	assert.ErrorIs(t, err, ErrCounterRegression)
	_, err = login(0)
	assert.ErrorIs(t, err, ErrCounterRegression)

	stored, err := h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), stored.SignCount)

	regressions := h.sink.OfType(audit.CounterRegression)
	require.Len(t, regressions, 3)
	assert.Equal(t, "alice", regressions[0].UserID)
	assert.Equal(t, stored.ID(), regressions[0].CredentialID)
}

func TestAuthentication_RefreshesBackupState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle:     []byte("alice"),
		BackupEligible: true,
	})
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	opts, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	_, err = h.svc.CompleteRegistration(ctx, "alice", "", attest(t, h.rp, opts, auth, cred))
	require.NoError(t, err)
	auth.AddCredential(cred)

	stored, err := h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.False(t, stored.BackedUp)

	// The passkey has since been synced to a provider.
	auth.Options.BackupState = true
	opts, err = h.svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	res, err := h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	require.NoError(t, err)
	assert.True(t, res.Authenticator.BackedUp)

	stored, err = h.registry.FindByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, stored.BackedUp)
}

func TestAuthentication_UnknownCredentialBurnsChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	stranger := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	strangerAuth := virtualwebauthn.NewAuthenticator()
	strangerAuth.AddCredential(stranger)

	opts, err := h.svc.BeginAuthentication(ctx, "")
	require.NoError(t, err)

	_, err = h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, strangerAuth, stranger))
	assert.ErrorIs(t, err, ErrAuthenticatorNotFound)

	_, err = h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
}

func TestAuthentication_Replay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	opts, err := h.svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	parsed := assertion(t, h.rp, opts, auth, cred)

	_, err = h.svc.CompleteAuthentication(ctx, parsed)
	require.NoError(t, err)
	_, err = h.svc.CompleteAuthentication(ctx, parsed)
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
}

func TestAuthentication_ChallengeExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	opts, err := h.svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)

	h.clock.Advance(challenge.DefaultTTL + time.Millisecond)
	_, err = h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	assert.ErrorIs(t, err, ErrChallengeExpiredOrMissing)
}

func TestAuthentication_ChallengeForAnotherUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")
	h.register(t, "bob")

	opts, err := h.svc.BeginAuthentication(ctx, "")
	require.NoError(t, err)

	// Rebind the pending challenge to bob.
	c, err := h.challenges.TakeValue(ctx, challenge.KindAuthentication, opts.Challenge)
	require.NoError(t, err)
	c.UserID = "bob"
	require.NoError(t, h.challenges.Put(ctx, c))

	_, err = h.svc.CompleteAuthentication(ctx, assertion(t, h.rp, opts, auth, cred))
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestAuthentication_WrongOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	auth, cred := h.register(t, "alice")

	evil := h.rp
	evil.Origin = "https://evil.example.net"

	opts, err := h.svc.BeginAuthentication(ctx, "alice")
	require.NoError(t, err)
	_, err = h.svc.CompleteAuthentication(ctx, assertion(t, evil, opts, auth, cred))
	assert.ErrorIs(t, err, ErrVerificationFailed)

	failed := h.sink.OfType(audit.AuthenticationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "verification_failed", failed[0].Detail)
}

func TestBeginAuthentication_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.BeginAuthentication(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, h.users.Create(ctx, &user.User{ID: "carol"}))
	_, err = h.svc.BeginAuthentication(ctx, "carol")
	assert.ErrorIs(t, err, ErrNoAuthenticators)

	_, err = h.svc.CompleteAuthentication(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestManageAuthenticators(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, cred := h.register(t, "alice")
	h.register(t, "bob")

	assert.ErrorIs(t, h.svc.RenameAuthenticator(ctx, "bob", cred.ID, "mine"), ErrNotAuthorized)
	assert.ErrorIs(t, h.svc.RenameAuthenticator(ctx, "alice", cred.ID, ""), ErrInvalidRequest)
	assert.ErrorIs(t, h.svc.RenameAuthenticator(ctx, "alice", cred.ID, "Key\x1b[2J"), ErrInvalidRequest)
	require.NoError(t, h.svc.RenameAuthenticator(ctx, "alice", cred.ID, "Laptop"))

	auths, err := h.svc.ListAuthenticators(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.Equal(t, "Laptop", auths[0].DeviceName)

	enrolled, err := h.svc.HasAuthenticators(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, enrolled)
	enrolled, err = h.svc.HasAuthenticators(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, enrolled)

	assert.ErrorIs(t, h.svc.DeleteAuthenticator(ctx, "bob", cred.ID), ErrNotAuthorized)
	require.NoError(t, h.svc.DeleteAuthenticator(ctx, "alice", cred.ID))
	assert.ErrorIs(t, h.svc.DeleteAuthenticator(ctx, "alice", cred.ID), ErrAuthenticatorNotFound)

	auths, err = h.svc.ListAuthenticators(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, auths)

	assert.Len(t, h.sink.OfType(audit.AuthenticatorDeleted), 1)
	assert.Len(t, h.sink.OfType(audit.AuthenticatorRenamed), 1)
}

func TestCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.BeginRegistration(ctx, "alice", "")
	require.NoError(t, err)
	_, err = h.svc.BeginRegistration(ctx, "bob", "")
	require.NoError(t, err)

	n, err := h.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(challenge.DefaultTTL)
	n, err = h.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, h.challenges.Count())
}
