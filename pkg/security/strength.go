// Package security analyzes an unlocked vault offline: password strength
// on a length-first scale, reuse detection over HMAC-masked values, and
// the aggregate report behind the security command. Nothing in this
// package performs network I/O or persists analysis state.
package security

import "unicode/utf8"

// Strength grades a password. Length is the primary factor per NIST
// SP 800-63B; composition rules are deliberately not graded.
type Strength int

const (
	// StrengthWeak is below the 8-character floor.
	StrengthWeak Strength = iota
	// StrengthFair is minimally acceptable.
	StrengthFair
	// StrengthGood covers 14 characters and up.
	StrengthGood
	// StrengthStrong covers 20 characters and up.
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthFair:
		return "fair"
	case StrengthGood:
		return "good"
	case StrengthStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// points feeds the aggregate score: weak 0, fair 8, good 17, strong 25.
func (s Strength) points() int {
	switch s {
	case StrengthFair:
		return 8
	case StrengthGood:
		return 17
	case StrengthStrong:
		return 25
	default:
		return 0
	}
}

// PasswordStrength grades a password by character count. Spoken
// passwords may carry non-ASCII characters, so length counts runes.
func PasswordStrength(value string) Strength {
	switch length := utf8.RuneCountInString(value); {
	case length >= 20:
		return StrengthStrong
	case length >= 14:
		return StrengthGood
	case length >= 8:
		return StrengthFair
	default:
		return StrengthWeak
	}
}
