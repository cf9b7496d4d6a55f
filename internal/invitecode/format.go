// Package invitecode implements the invite code lifecycle: format rules,
// collision-free generation, and the store contract for atomic one-time
// consumption.
package invitecode

import (
	"errors"
	"strings"
)

const (
	// Prefix starts every invite code, current and legacy.
	Prefix = "NC"

	// Alphabet is the 31-symbol charset for the random portion of a code.
	// Visually ambiguous characters (0/O, 1/I/L) are excluded.
	Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// CodeLength is the total length of a current code: prefix + 8 symbols.
	CodeLength = 10

	// LegacyCodeLength is the total length of a legacy code: prefix + 6
	// symbols. Legacy codes remain redeemable indefinitely.
	LegacyCodeLength = 8

	displayGroupSize = 4
	displaySeparator = "-"
)

var (
	ErrBadPrefix = errors.New("invitecode: code does not start with NC")
	ErrBadLength = errors.New("invitecode: code has wrong length")
	ErrBadSymbol = errors.New("invitecode: code contains a symbol outside the permitted alphabet")
)

// Normalize converts raw user input into the canonical stored form:
// surrounding whitespace trimmed, uppercased, prefix and length checked,
// every symbol after the prefix verified against Alphabet. It is pure and
// deterministic so the same grammar can be mirrored on clients without
// divergence risk.
func Normalize(input string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(input))
	if !strings.HasPrefix(code, Prefix) {
		return "", ErrBadPrefix
	}
	if len(code) != CodeLength && len(code) != LegacyCodeLength {
		return "", ErrBadLength
	}
	for _, r := range code[len(Prefix):] {
		if !strings.ContainsRune(Alphabet, r) {
			return "", ErrBadSymbol
		}
	}
	return code, nil
}

// FormatForDisplay inserts separators for readability: groups of four
// symbols, then the remainder. Purely cosmetic; the stored and compared form
// never includes separators. Reverse with StripDisplay.
func FormatForDisplay(code string) string {
	var groups []string
	for len(code) > displayGroupSize {
		groups = append(groups, code[:displayGroupSize])
		code = code[displayGroupSize:]
	}
	if code != "" {
		groups = append(groups, code)
	}
	return strings.Join(groups, displaySeparator)
}

// StripDisplay removes display separators, recovering the canonical form.
func StripDisplay(display string) string {
	return strings.ReplaceAll(display, displaySeparator, "")
}
