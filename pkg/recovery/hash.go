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
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the per-key salt.
const SaltSize = 16

// Argon2idParams are the argon2id cost parameters.
type Argon2idParams struct {
	Time        uint32 `yaml:"time" json:"time" mapstructure:"time"`
	MemoryKiB   uint32 `yaml:"memory_kib" json:"memory_kib" mapstructure:"memory_kib"`
	Parallelism uint8  `yaml:"parallelism" json:"parallelism" mapstructure:"parallelism"`
	KeyLen      uint32 `yaml:"key_len" json:"key_len" mapstructure:"key_len"`
}

// DefaultArgon2idParams returns the RFC 9106 second recommended option.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// Validate rejects parameters argon2 cannot run with.
func (p Argon2idParams) Validate() error {
	switch {
	case p.Time == 0:
		return fmt.Errorf("argon2id time must be at least 1")
	case p.Parallelism == 0:
		return fmt.Errorf("argon2id parallelism must be at least 1")
	case p.MemoryKiB < 8*uint32(p.Parallelism):
		return fmt.Errorf("argon2id memory must be at least 8 KiB per lane")
	case p.KeyLen < 16:
		return fmt.Errorf("argon2id key length must be at least 16 bytes")
	}
	return nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func deriveKey(code, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey(code, salt, p.Time, p.MemoryKiB, p.Parallelism, p.KeyLen)
}

func compareKey(code, salt, expected []byte, p Argon2idParams) bool {
	return subtle.ConstantTimeCompare(deriveKey(code, salt, p), expected) == 1
}
