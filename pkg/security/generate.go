package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Character classes for generated passwords.
const (
	charsetLowercase = "abcdefghijklmnopqrstuvwxyz"
	charsetUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits    = "0123456789"
	charsetSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// Generated password length bounds.
const (
	MinGeneratedLength     = 8
	MaxGeneratedLength     = 256
	DefaultGeneratedLength = 20
)

// GeneratePassword returns a random password of the given length with at
// least one character from every enabled class (lowercase, uppercase,
// digits, and symbols unless noSymbols). Randomness comes from
// crypto/rand throughout.
func GeneratePassword(length int, noSymbols bool) (string, error) {
	if length < MinGeneratedLength || length > MaxGeneratedLength {
		return "", fmt.Errorf("security: password length must be between %d and %d", MinGeneratedLength, MaxGeneratedLength)
	}

	classes := []string{charsetLowercase, charsetUppercase, charsetDigits}
	if !noSymbols {
		classes = append(classes, charsetSymbols)
	}
	full := strings.Join(classes, "")

	out := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := randomChar(full)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	// Shuffle so the guaranteed class characters do not sit at fixed
	// positions.
	for i := len(out) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("security: failed to shuffle password: %w", err)
		}
		j := n.Int64()
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("security: failed to draw random character: %w", err)
	}
	return set[idx.Int64()], nil
}
