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
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/metrics"
)

// MethodRecoveryKey names this authentication method to token issuers.
const MethodRecoveryKey = "recovery_key"

// ErrUserIDRequired is returned when an operation is called without a user.
var ErrUserIDRequired = errors.New("user id is required")

// TokenIssuer mints a session token once a user has been verified.
type TokenIssuer interface {
	IssueToken(ctx context.Context, userID, method string) (string, error)
}

// Config holds recovery key policy.
type Config struct {
	// TTL is how long a generated key stays valid. Default: 7 days.
	TTL time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`

	// Argon2id are the hashing cost parameters.
	Argon2id Argon2idParams `yaml:"argon2id" json:"argon2id" mapstructure:"argon2id"`

	// KeepPrevious leaves a user's earlier keys valid when a new one is
	// generated. By default they are invalidated.
	KeepPrevious bool `yaml:"keep_previous" json:"keep_previous" mapstructure:"keep_previous"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Argon2id == (Argon2idParams{}) {
		c.Argon2id = DefaultArgon2idParams()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("recovery ttl must be positive")
	}
	return c.Argon2id.Validate()
}

// Result is the outcome of a successful verification.
type Result struct {
	Verified bool   `json:"verified"`
	UserID   string `json:"userId"`
	Token    string `json:"token,omitempty"`
}

// ServiceParams contains dependencies for creating a recovery Service.
type ServiceParams struct {
	// Config is the recovery policy (required).
	Config *Config

	// Store is the key persistence layer (required).
	Store Store

	// TokenIssuer is optional. When nil, results carry no token.
	TokenIssuer TokenIssuer

	// Audit is optional.
	Audit *audit.Recorder

	// Logger is optional.
	Logger *slog.Logger

	// Clock replaces time.Now. Optional.
	Clock func() time.Time
}

// Service generates, verifies and invalidates recovery keys.
type Service struct {
	config *Config
	store  Store
	tokens TokenIssuer
	audit  *audit.Recorder
	logger *slog.Logger
	now    func() time.Time
	dummy  []byte
}

// NewService creates a recovery Service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("recovery key store is required")
	}
	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	dummy, err := newSalt()
	if err != nil {
		return nil, err
	}
	return &Service{
		config: params.Config,
		store:  params.Store,
		tokens: params.TokenIssuer,
		audit:  params.Audit,
		logger: logger.With("component", "recovery"),
		now:    clock,
		dummy:  dummy,
	}, nil
}

// Generate creates a recovery key for userID and returns its plaintext.
// The plaintext is not retrievable afterwards.
func (s *Service) Generate(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	key, err := s.generate(ctx, userID)
	metrics.RecordCeremony(metrics.CeremonyRecovery, metrics.StageGenerate, metrics.Status(err), time.Since(start).Seconds())
	return key, err
}

func (s *Service) generate(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUserIDRequired
	}
	now := s.now().UTC()

	if !s.config.KeepPrevious {
		if _, err := s.store.InvalidateAll(ctx, userID, now); err != nil {
			return "", fmt.Errorf("invalidate previous recovery keys: %w", err)
		}
	}

	code, err := newCode()
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(code)

	salt, err := newSalt()
	if err != nil {
		return "", err
	}

	k := &Key{
		ID:        uuid.NewString(),
		UserID:    userID,
		Hash:      deriveKey(code, salt, s.config.Argon2id),
		Salt:      salt,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	if err := s.store.Create(ctx, k); err != nil {
		return "", fmt.Errorf("store recovery key: %w", err)
	}

	e := audit.NewEvent(ctx, audit.RecoveryGenerated, userID)
	e.Detail = "key_id=" + k.ID
	s.audit.Emit(ctx, e)
	s.logger.InfoContext(ctx, "recovery key generated", "user_id", userID, "key_id", k.ID, "expires_at", k.ExpiresAt)

	return Format(code), nil
}

// Verify checks submitted against the user's active keys. On a match the
// key is consumed and a Result is returned; every other outcome is
// ErrInvalid. Store failures are returned wrapped.
func (s *Service) Verify(ctx context.Context, userID, submitted string) (*Result, error) {
	start := time.Now()
	res, err := s.verify(ctx, userID, submitted)
	metrics.RecordCeremony(metrics.CeremonyRecovery, metrics.StageVerify, metrics.Status(err), time.Since(start).Seconds())
	if errors.Is(err, ErrInvalid) {
		metrics.RecordFailure(metrics.CeremonyRecovery, "invalid")
		s.audit.Emit(ctx, audit.NewEvent(ctx, audit.RecoveryFailed, userID))
	}
	return res, err
}

func (s *Service) verify(ctx context.Context, userID, submitted string) (*Result, error) {
	code := Normalize(submitted)
	defer memguard.WipeBytes(code)

	if userID == "" || len(code) != CodeLength {
		return nil, ErrInvalid
	}

	now := s.now().UTC()
	keys, err := s.store.ListActive(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list recovery keys: %w", err)
	}
	if len(keys) == 0 {
		// Same work as a single-key miss.
		compareKey(code, s.dummy, s.dummy, s.config.Argon2id)
		return nil, ErrInvalid
	}

	for _, k := range keys {
		if !compareKey(code, k.Salt, k.Hash, s.config.Argon2id) {
			continue
		}
		if err := s.store.MarkUsed(ctx, k.ID, now); err != nil {
			if errors.Is(err, ErrAlreadyUsed) {
				return nil, ErrInvalid
			}
			return nil, fmt.Errorf("mark recovery key used: %w", err)
		}

		e := audit.NewEvent(ctx, audit.RecoveryVerified, userID)
		e.Detail = "key_id=" + k.ID
		s.audit.Emit(ctx, e)
		s.logger.InfoContext(ctx, "recovery key verified", "user_id", userID, "key_id", k.ID)

		res := &Result{Verified: true, UserID: userID}
		if s.tokens != nil {
			if res.Token, err = s.tokens.IssueToken(ctx, userID, MethodRecoveryKey); err != nil {
				return nil, fmt.Errorf("issue token: %w", err)
			}
		}
		return res, nil
	}
	return nil, ErrInvalid
}

// Invalidate marks all of the user's outstanding keys used.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	start := time.Now()
	err := s.invalidate(ctx, userID)
	metrics.RecordCeremony(metrics.CeremonyRecovery, metrics.StageInvalidate, metrics.Status(err), time.Since(start).Seconds())
	return err
}

func (s *Service) invalidate(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	n, err := s.store.InvalidateAll(ctx, userID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("invalidate recovery keys: %w", err)
	}
	e := audit.NewEvent(ctx, audit.RecoveryInvalidated, userID)
	e.Detail = "count=" + strconv.Itoa(n)
	s.audit.Emit(ctx, e)
	s.logger.InfoContext(ctx, "recovery keys invalidated", "user_id", userID, "count", n)
	return nil
}

// Cleanup deletes expired keys.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired recovery keys: %w", err)
	}
	metrics.RecordCleanup(metrics.RecordRecoveryKey, n)
	return n, nil
}
