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
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

const (
	// Alphabet is the character set of recovery keys.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// CodeLength is the number of significant characters in a key.
	CodeLength = 16

	// GroupSize is the number of characters between hyphens.
	GroupSize = 4
)

// Largest multiple of len(Alphabet) that fits in a byte; bytes at or
// above it are rejected so every character is equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

// newCode returns CodeLength uniformly random characters from Alphabet.
func newCode() ([]byte, error) {
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generate recovery key: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return code, nil
}

// Format groups a normalized code for display, e.g. AB12-CD34-EF56-GH78.
func Format(code []byte) string {
	var sb strings.Builder
	sb.Grow(len(code) + len(code)/GroupSize)
	for i, c := range code {
		if i > 0 && i%GroupSize == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// Normalize maps user input to the canonical form that is hashed:
// full-width characters are narrowed, letters upper-cased, and anything
// outside Alphabet (hyphens, spaces, punctuation) dropped.
func Normalize(input string) []byte {
	folded := cases.Upper(language.Und).String(width.Narrow.String(input))
	out := make([]byte, 0, CodeLength)
	for i := 0; i < len(folded); i++ {
		c := folded[i]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		}
	}
	return out
}
