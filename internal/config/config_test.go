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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefault_RateLimitEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Positive(t, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.WebAuthn.RPOrigins, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, def.WebAuthn.ChallengeTTL, cfg.WebAuthn.ChallengeTTL)
	assert.Equal(t, def.Recovery, cfg.Recovery)
	assert.Equal(t, def.Storage, cfg.Storage)
	assert.Equal(t, def.Cleanup, cfg.Cleanup)
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9443"
  read_timeout: 5s
webauthn:
  id: example.com
  display_name: Example Corp
  origins:
    - https://example.com
    - https://www.example.com
  challenge_ttl: 2m
  user_verification: required
recovery:
  enabled: true
  ttl: 24h
  keep_previous: true
  argon2id:
    time: 2
session:
  issuer: auth.example.com
storage:
  backend: bbolt
  path: /var/lib/devicetrust/data.db
ratelimit:
  enabled: true
  requests_per_minute: 30
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9443", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep their defaults")

	assert.Equal(t, "example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"https://example.com", "https://www.example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, 2*time.Minute, cfg.WebAuthn.ChallengeTTL)
	assert.Equal(t, "required", cfg.WebAuthn.UserVerification)

	assert.True(t, cfg.Recovery.Enabled)
	assert.True(t, cfg.Recovery.KeepPrevious)
	assert.Equal(t, 24*time.Hour, cfg.Recovery.TTL)
	assert.Equal(t, uint32(2), cfg.Recovery.Argon2id.Time)
	assert.Equal(t, Default().Recovery.Argon2id.MemoryKiB, cfg.Recovery.Argon2id.MemoryKiB)

	assert.Equal(t, "auth.example.com", cfg.Session.Issuer)
	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  address: \":9443\"\n")

	t.Setenv("DEVICETRUST_SERVER_ADDRESS", ":7000")
	t.Setenv("DEVICETRUST_WEBAUTHN_ID", "env.example.com")
	t.Setenv("DEVICETRUST_WEBAUTHN_ORIGINS", "https://env.example.com,https://alt.example.com")
	t.Setenv("DEVICETRUST_SESSION_TTL", "30m")
	t.Setenv("DEVICETRUST_STORAGE_BACKEND", "postgres")
	t.Setenv("DEVICETRUST_STORAGE_DSN", "postgres://app:secret@db:5432/devicetrust")
	t.Setenv("DEVICETRUST_RECOVERY_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "env.example.com", cfg.WebAuthn.RPID)
	assert.Equal(t, []string{"https://env.example.com", "https://alt.example.com"}, cfg.WebAuthn.RPOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.False(t, cfg.Recovery.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("validation failure", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage:\n  backend: redis\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid storage backend")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"missing address", func(c *Config) { c.Server.Address = "" }, "server address"},
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true }, "cert_file"},
		{"tls without key", func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.CertFile = "cert.pem"
		}, "key_file"},
		{"webauthn without rp id", func(c *Config) { c.WebAuthn.RPID = "" }, "webauthn"},
		{"bad recovery params", func(c *Config) { c.Recovery.Argon2id.Time = 0 }, "recovery"},
		{"bad recovery params ignored when disabled", func(c *Config) {
			c.Recovery.Enabled = false
			c.Recovery.Argon2id.Time = 0
		}, ""},
		{"negative session ttl", func(c *Config) { c.Session.TTL = -time.Second }, "session"},
		{"bbolt without path", func(c *Config) {
			c.Storage.Backend = BackendBolt
			c.Storage.Path = ""
		}, "path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "dsn"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mysql" }, "invalid storage backend"},
		{"rate limit without rate", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "requests_per_minute"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"negative cleanup interval", func(c *Config) { c.Cleanup.Interval = -time.Second }, "cleanup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestYAML_MasksDSN(t *testing.T) {
	cfg := Default()
	cfg.Storage.DSN = "postgres://app:secret@db:5432/devicetrust"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.Equal(t, "postgres://app:secret@db:5432/devicetrust", cfg.Storage.DSN, "original is untouched")

	var round Config
	require.NoError(t, yaml.Unmarshal(out, &round))
	assert.Equal(t, "postgres://app:****@db:5432/devicetrust", round.Storage.DSN)
	assert.Equal(t, cfg.WebAuthn.RPOrigins, round.WebAuthn.RPOrigins)
	assert.Equal(t, cfg.Recovery.TTL, round.Recovery.TTL)
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"postgres://app:secret@db/x", "postgres://app:****@db/x"},
		{"postgres://app@db/x", "postgres://app@db/x"},
		{"postgres://db/x", "postgres://db/x"},
		{"host=db user=app password=secret dbname=x", "host=db user=app password=**** dbname=x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskDSN(tt.in), tt.in)
	}
}
