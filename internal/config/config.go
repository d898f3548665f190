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

// Package config loads the devicetrust server configuration from a YAML
// file and DEVICETRUST_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
	"github.com/jeremyhahn/go-devicetrust/pkg/ratelimit"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/session"
	"github.com/jeremyhahn/go-devicetrust/pkg/webauthn"
)

// EnvPrefix prefixes environment overrides. DEVICETRUST_SERVER_ADDRESS
// overrides server.address.
const EnvPrefix = "DEVICETRUST"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bbolt"
	BackendPostgres = "postgres"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	WebAuthn  webauthn.Config  `yaml:"webauthn" mapstructure:"webauthn"`
	Recovery  RecoveryConfig   `yaml:"recovery" mapstructure:"recovery"`
	Session   session.Config   `yaml:"session" mapstructure:"session"`
	Storage   StorageConfig    `yaml:"storage" mapstructure:"storage"`
	RateLimit ratelimit.Config `yaml:"ratelimit" mapstructure:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Logging   logging.Config   `yaml:"logging" mapstructure:"logging"`
	Cleanup   CleanupConfig    `yaml:"cleanup" mapstructure:"cleanup"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `yaml:"address" mapstructure:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `yaml:"tls" mapstructure:"tls"`
	CORS            CORSConfig    `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig controls cross-origin requests from browser clients
type CORSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxAge         time.Duration `yaml:"max_age" mapstructure:"max_age"`
}

// RecoveryConfig enables and tunes recovery keys
type RecoveryConfig struct {
	Enabled         bool `yaml:"enabled" mapstructure:"enabled"`
	recovery.Config `yaml:",inline" mapstructure:",squash"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Backend        string `yaml:"backend" mapstructure:"backend"`
	Path           string `yaml:"path" mapstructure:"path"`
	DSN            string `yaml:"dsn" mapstructure:"dsn"`
	MigrateOnStart bool   `yaml:"migrate_on_start" mapstructure:"migrate_on_start"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// CleanupConfig controls the expired record janitor
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8443",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				MaxAge: 10 * time.Minute,
			},
		},
		WebAuthn: webauthn.Config{
			RPID:                   "localhost",
			RPDisplayName:          "Device Trust",
			RPOrigins:              []string{"https://localhost:8443"},
			ChallengeTTL:           60 * time.Second,
			UserVerification:       "preferred",
			AttestationPreference:  "none",
			ResidentKeyRequirement: "preferred",
			AutoCreateUsers:        true,
		},
		Recovery: RecoveryConfig{
			Enabled: true,
			Config: recovery.Config{
				TTL:      recovery.DefaultTTL,
				Argon2id: recovery.DefaultArgon2idParams(),
			},
		},
		Session: session.Config{
			Issuer:   session.DefaultIssuer,
			Audience: []string{session.DefaultIssuer},
			TTL:      session.DefaultTTL,
		},
		Storage: StorageConfig{
			Backend:        BackendMemory,
			Path:           "devicetrust.db",
			MigrateOnStart: true,
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Cleanup: CleanupConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// Load reads configuration from path, if not empty, over Default() and
// applies DEVICETRUST_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key must be known to viper for AutomaticEnv to see it.
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key of cfg with viper by round tripping it
// through YAML.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	flatten(v, "", tree)
	return nil
}

func flatten(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := val.(type) {
		case map[string]any:
			flatten(v, key, x)
		case []any:
			if len(x) == 0 {
				// Registered so env overrides apply, decoded as nil.
				v.SetDefault(key, nil)
				continue
			}
			v.SetDefault(key, x)
		default:
			v.SetDefault(key, val)
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address must be specified")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	if err := c.WebAuthn.Validate(); err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}
	if c.Recovery.Enabled {
		if err := c.Recovery.Config.Validate(); err != nil {
			return fmt.Errorf("recovery: %w", err)
		}
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the bbolt backend")
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, bbolt, or postgres)", c.Storage.Backend)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("ratelimit requests_per_minute must be positive when enabled")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Cleanup.Interval < 0 {
		return fmt.Errorf("cleanup interval must not be negative")
	}
	return nil
}

// YAML renders the configuration. Secrets in the postgres DSN are masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.Storage.DSN = maskDSN(c.Storage.DSN)
	return yaml.Marshal(&masked)
}

// maskDSN hides the password in a postgres URL or keyword DSN.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if scheme, rest, ok := strings.Cut(dsn, "://"); ok {
		userinfo, host, ok := strings.Cut(rest, "@")
		if !ok {
			return dsn
		}
		if name, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
			return scheme + "://" + name + ":****@" + host
		}
		return dsn
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}
