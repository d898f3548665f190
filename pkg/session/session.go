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

// Package session issues signed session tokens for users verified by a
// WebAuthn ceremony or a recovery key, and publishes the verification key
// as a JWK Set.
//
// Tokens are ES256 JWTs. The subject is the user ID and the "amr" claim
// names the method that verified the user.
package session

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultIssuer is the iss claim when none is configured.
	DefaultIssuer = "go-devicetrust"

	// DefaultTTL is the token lifetime when none is configured.
	DefaultTTL = time.Hour
)

// ErrInvalidToken is returned by Verify for any token that does not verify.
var ErrInvalidToken = errors.New("invalid session token")

// Config configures the Issuer.
type Config struct {
	// Issuer is the iss claim. Default: "go-devicetrust"
	Issuer string `yaml:"issuer" json:"issuer" mapstructure:"issuer"`

	// Audience is the aud claim. Default: [Issuer]
	Audience []string `yaml:"audience" json:"audience" mapstructure:"audience"`

	// TTL is the token lifetime. Default: 1h
	TTL time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`

	// KeyFile is a PEM encoded EC P-256 private key. When empty an
	// ephemeral key is generated at startup. When set but missing, a key
	// is generated and written there.
	KeyFile string `yaml:"key_file" json:"key_file" mapstructure:"key_file"`
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if len(c.Audience) == 0 {
		c.Audience = []string{c.Issuer}
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("session ttl must not be negative")
	}
	return nil
}

// Claims are the claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims

	// Method is the authentication method reference, e.g. "webauthn".
	Method string `json:"amr"`
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	key      *ecdsa.PrivateKey
	keyID    string
	issuer   string
	audience []string
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer signing with key.
func NewIssuer(cfg *Config, key *ecdsa.PrivateKey) (*Issuer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("session key must use P-256")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	kid, err := thumbprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Issuer{
		key:      key,
		keyID:    kid,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      time.Now,
	}, nil
}

// NewIssuerFromConfig loads or generates the signing key named by cfg and
// creates an Issuer.
func NewIssuerFromConfig(cfg *Config) (*Issuer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if cfg.KeyFile == "" {
		key, err = GenerateKey()
	} else {
		key, err = LoadOrCreateKey(cfg.KeyFile)
	}
	if err != nil {
		return nil, err
	}
	return NewIssuer(cfg, key)
}

// IssueToken mints a token for userID verified by method.
func (i *Issuer) IssueToken(ctx context.Context, userID, method string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   userID,
			Audience:  i.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Method: method,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = i.keyID
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token issued by this Issuer.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if kid, _ := t.Header["kid"].(string); kid != i.keyID {
				return nil, fmt.Errorf("unknown key id %q", kid)
			}
			return &i.key.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience[0]),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// KeyID returns the kid header value, the RFC 7638 thumbprint of the public key.
func (i *Issuer) KeyID() string {
	return i.keyID
}

// PublicKey returns the verification key.
func (i *Issuer) PublicKey() crypto.PublicKey {
	return &i.key.PublicKey
}

// JWKS returns the verification key as a JWK Set.
func (i *Issuer) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &i.key.PublicKey,
			KeyID:     i.keyID,
			Algorithm: string(jose.ES256),
			Use:       "sig",
		}},
	}
}

// GenerateKey creates a new P-256 signing key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

// LoadOrCreateKey reads a PEM encoded EC private key from path, generating
// and writing one with mode 0600 if the file does not exist.
func LoadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ParseKey(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read session key: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode session key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, block, 0o600); err != nil {
		return nil, fmt.Errorf("write session key: %w", err)
	}
	return key, nil
}

// ParseKey decodes a PEM encoded EC private key in SEC 1 or PKCS#8 form.
func ParseKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("session key: no PEM block found")
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse session key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse session key: %w", err)
		}
		key, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("session key is %T, want ECDSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("session key: unsupported PEM type %q", block.Type)
	}
}

func thumbprint(pub *ecdsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
