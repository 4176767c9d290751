// Package normalize turns raw voice transcripts into comparable text.
// Both functions are pure, deterministic and idempotent.
package normalize

import (
	"regexp"
	"strings"
)

var (
	punctRe  = regexp.MustCompile(`[^\w\s]`)
	spaceRe  = regexp.MustCompile(`\s+`)
	suffixRe = regexp.MustCompile(`\s+(dot\s+)?(com|org|net|edu|gov|mil)$`)
)

// Normalize lowercases the text, replaces punctuation with spaces,
// collapses whitespace and strips trailing spoken domain suffixes, so
// "Gmail dot com!" and "gmail" compare equal. Empty or whitespace-only
// input yields "".
func Normalize(text string) string {
	t := strings.ToLower(text)
	t = punctRe.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
	// Repeated suffixes ("site dot com dot com") must reduce to a fixpoint,
	// otherwise normalizing twice would not equal normalizing once.
	for {
		s := suffixRe.ReplaceAllString(t, "")
		if s == t {
			return t
		}
		t = s
	}
}

// Spoken filler around a dictated secret. Prefixes are matched against the
// lowercased text; longer phrases are listed first so they win.
var (
	secretPrefixes = []string{
		"my passphrase is",
		"the passphrase is",
		"my password is",
		"the password is",
		"passphrase is",
		"password is",
		"set it to",
		"make it",
		"it is",
		"it's",
		"its",
		"use",
	}
	secretSuffixes = []string{
		"thank you",
		"thanks",
		"please",
	}
)

// CleanSpokenSecret strips dictation filler from a spoken secret:
// "my password is hunter two please" -> "hunter two". The remaining
// words keep their case; only surrounding filler and whitespace go.
func CleanSpokenSecret(text string) string {
	t := strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	for changed := true; changed; {
		changed = false
		if s := strings.TrimRight(t, ".,!?"); s != t {
			t = strings.TrimSpace(s)
			changed = true
		}
		lower := strings.ToLower(t)
		for _, p := range secretPrefixes {
			if lower == p {
				return ""
			}
			if strings.HasPrefix(lower, p+" ") {
				t = strings.TrimSpace(t[len(p):])
				changed = true
				break
			}
		}
		lower = strings.ToLower(t)
		for _, s := range secretSuffixes {
			if lower == s {
				return ""
			}
			if strings.HasSuffix(lower, " "+s) {
				t = strings.TrimSpace(t[:len(t)-len(s)])
				changed = true
				break
			}
		}
	}
	return t
}
