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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/challenge"
	"github.com/jeremyhahn/go-devicetrust/pkg/metrics"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
	"github.com/jeremyhahn/go-devicetrust/pkg/validation"
)

// MaxDeviceNameLength bounds authenticator labels.
const MaxDeviceNameLength = validation.MaxDeviceNameLength

// DefaultDeviceName labels authenticators registered without a name.
const DefaultDeviceName = "Authenticator"

// Service provides WebAuthn registration and authentication operations.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	users      user.Store
	registry   authenticator.Registry
	challenges *challenge.Manager
	tokens     TokenIssuer // optional
	audit      *audit.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceParams contains dependencies for creating a WebAuthn service.
type ServiceParams struct {
	// Config is the WebAuthn configuration (required).
	Config *Config

	// UserStore resolves user identities (required).
	UserStore user.Store

	// Registry is the authenticator persistence layer (required).
	Registry authenticator.Registry

	// ChallengeStore holds pending challenges (required).
	ChallengeStore challenge.Store

	// TokenIssuer mints session tokens after verification. Optional.
	TokenIssuer TokenIssuer

	// Audit records ceremony outcomes. Optional.
	Audit *audit.Recorder

	// Logger is optional; slog.Default() is used when nil.
	Logger *slog.Logger

	// Clock replaces time.Now for challenge expiry and timestamps. Optional.
	Clock func() time.Time
}

// NewService creates a new WebAuthn service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("authenticator registry is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	challenges, err := challenge.NewManager(params.ChallengeStore,
		challenge.WithTTL(params.Config.ChallengeTTL),
		challenge.WithClock(clock),
	)
	if err != nil {
		return nil, err
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		users:      params.UserStore,
		registry:   params.Registry,
		challenges: challenges,
		tokens:     params.TokenIssuer,
		audit:      params.Audit,
		logger:     logger.With("component", "webauthn"),
		now:        clock,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// BeginRegistration starts the registration ceremony for userID. Existing
// authenticators are sent as excludeCredentials so the same device is not
// enrolled twice. A new call replaces any pending registration challenge.
func (s *Service) BeginRegistration(ctx context.Context, userID, displayName string) (*CeremonyOptions, error) {
	start := time.Now()
	opts, err := s.beginRegistration(ctx, userID, displayName)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageBegin, metrics.Status(err), time.Since(start).Seconds())
	return opts, err
}

func (s *Service) beginRegistration(ctx context.Context, userID, displayName string) (*CeremonyOptions, error) {
	u, err := s.loadOrCreateUser(ctx, userID, displayName)
	if err != nil {
		return nil, err
	}

	auths, err := s.registry.ListForUser(ctx, u.ID)
	if err != nil {
		return nil, WrapError("list authenticators", err)
	}
	p := newPrincipal(u, auths)

	var creation *protocol.CredentialCreation
	c, err := s.challenges.Issue(ctx, challenge.KindRegistration, u.ID, func(raw []byte) ([]byte, error) {
		cr, session, err := s.webauthn.BeginRegistration(p,
			webauthn.WithExclusions(descriptors(auths)),
			withCreationChallenge(raw),
		)
		if err != nil {
			return nil, err
		}
		session.Challenge = protocol.URLEncodedBase64(raw).String()
		creation = cr
		return json.Marshal(session)
	})
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	return &CeremonyOptions{
		Kind:      c.Kind,
		Challenge: c.Value,
		ExpiresAt: c.ExpiresAt,
		Creation:  creation,
	}, nil
}

func (s *Service) loadOrCreateUser(ctx context.Context, userID, displayName string) (*user.User, error) {
	if err := user.ValidateID(userID); err != nil {
		return nil, NewError("validate user", err)
	}
	u, err := s.users.Get(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) || !s.config.AutoCreateUsers {
		return nil, WrapError("get user", err)
	}

	u = &user.User{
		ID:          userID,
		Name:        userID,
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, user.ErrUserAlreadyExists) {
			return nil, WrapError("create user", err)
		}
		// Lost a creation race; use the winner's record.
		if u, err = s.users.Get(ctx, userID); err != nil {
			return nil, WrapError("get user", err)
		}
	}
	s.logger.InfoContext(ctx, "user created", "user_id", userID)
	return u, nil
}

// CompleteRegistration verifies an attestation response against the user's
// pending registration challenge and stores the new authenticator. The
// challenge is consumed whether or not verification succeeds.
func (s *Service) CompleteRegistration(ctx context.Context, userID, deviceName string, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	start := time.Now()
	res, err := s.completeRegistration(ctx, userID, deviceName, response)
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageComplete, metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		reason := failureReason(err)
		metrics.RecordFailure(metrics.CeremonyRegistration, reason)
		e := audit.NewEvent(ctx, audit.RegistrationFailed, userID)
		e.Detail = reason
		s.audit.Emit(ctx, e)
		s.logger.WarnContext(ctx, "registration failed", "user_id", userID, "reason", reason, "error", err)
	}
	return res, err
}

func (s *Service) completeRegistration(ctx context.Context, userID, deviceName string, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	if response == nil {
		return nil, ErrInvalidRequest
	}
	if err := validation.ValidateDeviceName(deviceName); err != nil {
		return nil, NewError("validate device name", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	c, err := s.challenges.Consume(ctx, challenge.KindRegistration, userID)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(c.Payload, &session); err != nil {
		return nil, WrapError("decode session", err)
	}

	credential, err := s.webauthn.CreateCredential(newPrincipal(u, nil), session, response)
	if err != nil {
		return nil, verificationError("create credential", err)
	}

	if deviceName == "" {
		deviceName = DefaultDeviceName
	}
	a := fromCredential(u.ID, deviceName, credential, s.now().UTC())
	if err := s.registry.Create(ctx, a); err != nil {
		return nil, WrapError("create authenticator", err)
	}

	token, err := s.issueToken(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	e := audit.NewEvent(ctx, audit.RegistrationVerified, u.ID)
	e.CredentialID = a.ID()
	e.Detail = string(a.DeviceType)
	s.audit.Emit(ctx, e)
	s.logger.InfoContext(ctx, "authenticator registered",
		"user_id", u.ID,
		"credential_id", a.ID(),
		"device_type", a.DeviceType,
		"attestation", a.AttestationType)

	return &RegistrationResult{
		Verified:      true,
		Authenticator: a,
		Token:         token,
	}, nil
}

// BeginAuthentication starts the authentication ceremony. With a userID the
// challenge is bound to that user and the options list their
// authenticators; without one a discoverable (passkey) challenge is issued
// with an empty allow-list.
func (s *Service) BeginAuthentication(ctx context.Context, userID string) (*CeremonyOptions, error) {
	start := time.Now()
	opts, err := s.beginAuthentication(ctx, userID)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StageBegin, metrics.Status(err), time.Since(start).Seconds())
	return opts, err
}

func (s *Service) beginAuthentication(ctx context.Context, userID string) (*CeremonyOptions, error) {
	var begin func(raw []byte) (*protocol.CredentialAssertion, *webauthn.SessionData, error)

	if userID == "" {
		begin = func(raw []byte) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
			return s.webauthn.BeginDiscoverableLogin(webauthn.WithChallenge(raw))
		}
	} else {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, WrapError("get user", err)
		}
		auths, err := s.registry.ListForUser(ctx, u.ID)
		if err != nil {
			return nil, WrapError("list authenticators", err)
		}
		if len(auths) == 0 {
			return nil, ErrNoAuthenticators
		}
		p := newPrincipal(u, auths)
		begin = func(raw []byte) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
			return s.webauthn.BeginLogin(p, webauthn.WithChallenge(raw))
		}
	}

	var assertion *protocol.CredentialAssertion
	c, err := s.challenges.Issue(ctx, challenge.KindAuthentication, userID, func(raw []byte) ([]byte, error) {
		a, session, err := begin(raw)
		if err != nil {
			return nil, err
		}
		assertion = a
		return json.Marshal(session)
	})
	if err != nil {
		return nil, WrapError("begin authentication", err)
	}

	return &CeremonyOptions{
		Kind:      c.Kind,
		Challenge: c.Value,
		ExpiresAt: c.ExpiresAt,
		Assertion: assertion,
	}, nil
}

// CompleteAuthentication verifies an assertion. The owner is resolved from
// the credential ID before any claimed identity is trusted, and the
// challenge named in the client data is consumed first so it cannot be
// replayed whatever the outcome.
func (s *Service) CompleteAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	start := time.Now()
	res, userID, err := s.completeAuthentication(ctx, response)
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.StageComplete, metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		reason := failureReason(err)
		metrics.RecordFailure(metrics.CeremonyAuthentication, reason)
		typ := audit.AuthenticationFailed
		if errors.Is(err, ErrCounterRegression) {
			typ = audit.CounterRegression
		}
		e := audit.NewEvent(ctx, typ, userID)
		if response != nil {
			e.CredentialID = authenticator.EncodeID(response.RawID)
		}
		e.Detail = reason
		s.audit.Emit(ctx, e)
		s.logger.WarnContext(ctx, "authentication failed", "user_id", userID, "reason", reason, "error", err)
	}
	return res, err
}

func (s *Service) completeAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, string, error) {
	if response == nil {
		return nil, "", ErrInvalidRequest
	}

	c, consumeErr := s.challenges.ConsumeValue(ctx, challenge.KindAuthentication, response.Response.CollectedClientData.Challenge)

	a, err := s.registry.FindByCredentialID(ctx, response.RawID)
	if err != nil {
		return nil, "", WrapError("find authenticator", err)
	}
	if consumeErr != nil {
		return nil, a.UserID, WrapError("consume challenge", consumeErr)
	}
	if c.UserID != "" && c.UserID != a.UserID {
		return nil, a.UserID, verificationError("check challenge", errors.New("challenge was issued to another user"))
	}

	u, err := s.users.Get(ctx, a.UserID)
	if err != nil {
		return nil, a.UserID, WrapError("get user", err)
	}
	auths, err := s.registry.ListForUser(ctx, u.ID)
	if err != nil {
		return nil, u.ID, WrapError("list authenticators", err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(c.Payload, &session); err != nil {
		return nil, u.ID, WrapError("decode session", err)
	}
	// Discoverable challenges carry no user; bind the resolved owner.
	session.UserID = u.Handle()

	if _, err := s.webauthn.ValidateLogin(newPrincipal(u, auths), session, response); err != nil {
		return nil, u.ID, verificationError("validate login", err)
	}

	now := s.now().UTC()
	reported := response.Response.AuthenticatorData.Counter
	backedUp := response.Response.AuthenticatorData.Flags.HasBackupState()
	if reported == 0 && a.SignCount == 0 {
		err = s.registry.Touch(ctx, a.CredentialID, backedUp, now)
	} else {
		err = s.registry.UpdateCounter(ctx, a.CredentialID, reported, backedUp, now)
	}
	if err != nil {
		if errors.Is(err, ErrCounterRegression) {
			s.logger.WarnContext(ctx, "signature counter did not advance",
				"user_id", u.ID,
				"credential_id", a.ID(),
				"stored", a.SignCount,
				"reported", reported)
		}
		return nil, u.ID, WrapError("update counter", err)
	}
	a.SignCount = max(a.SignCount, reported)
	a.BackedUp = backedUp
	a.LastUsedAt = &now

	token, err := s.issueToken(ctx, u.ID)
	if err != nil {
		return nil, u.ID, err
	}

	e := audit.NewEvent(ctx, audit.AuthenticationVerified, u.ID)
	e.CredentialID = a.ID()
	s.audit.Emit(ctx, e)
	s.logger.InfoContext(ctx, "authentication verified", "user_id", u.ID, "credential_id", a.ID())

	return &AuthenticationResult{
		Verified:      true,
		UserID:        u.ID,
		Authenticator: a,
		Token:         token,
	}, u.ID, nil
}

// ListAuthenticators returns the user's authenticators, oldest first.
func (s *Service) ListAuthenticators(ctx context.Context, userID string) ([]*authenticator.Authenticator, error) {
	auths, err := s.registry.ListForUser(ctx, userID)
	if err != nil {
		return nil, WrapError("list authenticators", err)
	}
	return auths, nil
}

// HasAuthenticators reports whether userID has at least one registered
// authenticator. Unknown users have none.
func (s *Service) HasAuthenticators(ctx context.Context, userID string) (bool, error) {
	auths, err := s.registry.ListForUser(ctx, userID)
	if err != nil {
		return false, WrapError("list authenticators", err)
	}
	return len(auths) > 0, nil
}

// DeleteAuthenticator removes one of userID's authenticators.
func (s *Service) DeleteAuthenticator(ctx context.Context, userID string, credentialID []byte) error {
	if err := s.registry.Delete(ctx, credentialID, userID); err != nil {
		return WrapError("delete authenticator", err)
	}
	e := audit.NewEvent(ctx, audit.AuthenticatorDeleted, userID)
	e.CredentialID = authenticator.EncodeID(credentialID)
	s.audit.Emit(ctx, e)
	s.logger.InfoContext(ctx, "authenticator deleted", "user_id", userID, "credential_id", e.CredentialID)
	return nil
}

// RenameAuthenticator changes the label of one of userID's authenticators.
func (s *Service) RenameAuthenticator(ctx context.Context, userID string, credentialID []byte, name string) error {
	if name == "" {
		return NewError("validate device name", ErrInvalidRequest)
	}
	if err := validation.ValidateDeviceName(name); err != nil {
		return NewError("validate device name", fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	if err := s.registry.Rename(ctx, credentialID, userID, name); err != nil {
		return WrapError("rename authenticator", err)
	}
	e := audit.NewEvent(ctx, audit.AuthenticatorRenamed, userID)
	e.CredentialID = authenticator.EncodeID(credentialID)
	e.Detail = name
	s.audit.Emit(ctx, e)
	return nil
}

// Cleanup removes expired challenges.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	n, err := s.challenges.Cleanup(ctx)
	if err != nil {
		return 0, WrapError("cleanup challenges", err)
	}
	metrics.RecordCleanup(metrics.RecordChallenge, n)
	return n, nil
}

func (s *Service) issueToken(ctx context.Context, userID string) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	token, err := s.tokens.IssueToken(ctx, userID, MethodWebAuthn)
	if err != nil {
		return "", WrapError("issue token", err)
	}
	return token, nil
}

// withCreationChallenge makes registration options carry a challenge
// issued by the challenge manager.
func withCreationChallenge(raw []byte) webauthn.RegistrationOption {
	return func(o *protocol.PublicKeyCredentialCreationOptions) {
		o.Challenge = raw
	}
}

// failureReason maps an error to a bounded metrics and audit label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrChallengeExpiredOrMissing):
		return "challenge_expired_or_missing"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrAuthenticatorNotFound):
		return "authenticator_not_found"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
