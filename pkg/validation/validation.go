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

// Package validation checks client supplied identifiers and labels before
// they reach storage, logs or authenticators.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxUserIDLength bounds user IDs. WebAuthn user handles are at most
	// 64 bytes.
	MaxUserIDLength = 64

	// MaxDeviceNameLength bounds authenticator labels, in bytes.
	MaxDeviceNameLength = 64

	// maxLogLength truncates sanitized log values.
	maxLogLength = 1000
)

// ValidateUserID validates a user identifier.
// Rejects:
// - empty strings
// - values longer than MaxUserIDLength bytes
// - invalid UTF-8
// - null bytes and other control characters
// - leading or trailing whitespace
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("user ID cannot be empty")
	}

	// Check length before scanning runes
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user ID too long (max %d bytes)", MaxUserIDLength)
	}

	if err := checkText("user ID", id); err != nil {
		return err
	}

	if strings.TrimSpace(id) != id {
		return fmt.Errorf("user ID has leading or trailing whitespace")
	}
	return nil
}

// ValidateDeviceName validates an authenticator label. An empty name is
// valid; callers that require one check for it themselves.
func ValidateDeviceName(name string) error {
	if len(name) > MaxDeviceNameLength {
		return fmt.Errorf("device name too long (max %d bytes)", MaxDeviceNameLength)
	}
	return checkText("device name", name)
}

func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s is not valid UTF-8", field)
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("%s contains null byte", field)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", field)
		}
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > maxLogLength {
		cut := maxLogLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "...[truncated]"
	}

	return s
}
