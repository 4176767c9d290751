package session

import (
	"strings"

	"github.com/voxvault/voxvault/pkg/normalize"
)

// Action classifies what a spoken command asks for.
type Action string

// Recognized actions.
const (
	ActionUnknown  Action = "unknown"
	ActionSave     Action = "save"
	ActionRetrieve Action = "retrieve"
	ActionDelete   Action = "delete"
	ActionList     Action = "list"
)

// Intent is the parsed form of a spoken command.
type Intent struct {
	Action Action

	// SitePhrase is the part of the transcript naming the site, with
	// action keywords and connective filler removed. It still needs
	// resolution against the catalog before it can key a vault call.
	SitePhrase string

	// Secret is the dictated password of a save command, cleaned of
	// spoken filler. Empty when the transcript carried none.
	Secret string
}

// Keyword tables for intent classification. Matching is whole-token, so
// a password like "delete42" never flips the action.
var (
	saveWords     = wordSet("save", "store", "remember", "add", "set", "update")
	retrieveWords = wordSet("get", "retrieve", "show", "tell", "read", "find", "lookup", "look", "need", "what", "whats", "what's")
	deleteWords   = wordSet("delete", "remove", "forget", "erase")

	// Connective filler carries no site information and is dropped from
	// the site phrase. "all" and "everything" land here so that a
	// retrieve with no remaining target degrades to a listing.
	fillerWords = wordSet(
		"the", "my", "a", "an", "for", "of", "to", "me", "i", "is", "it",
		"its", "it's", "do", "does", "have", "can", "you", "please",
		"thanks", "thank", "up", "on", "in", "old", "new", "all",
		"everything", "password", "passwords", "passphrase", "credential",
		"credentials", "login", "account",
	)
)

// Secret markers split a save transcript into the site phrase and the
// dictated password. Longer sequences are listed first so that, at any
// position, the most specific marker wins.
var secretMarkers = [][]string{
	{"set", "it", "to"},
	{"password", "is"},
	{"passphrase", "is"},
	{"it", "is"},
	{"it's"},
	{"its"},
}

// ParseIntent classifies a transcript into an action and extracts the
// site phrase and, for save commands, the dictated password. It never
// fails: anything it cannot classify comes back as ActionUnknown.
//
// Supported shapes, by example:
//
//	"save password for gmail the password is hunter two"
//	"get my facebook password"
//	"what is my google mail password"
//	"delete the netflix password"
//	"list my passwords" / "show all my passwords"
func ParseIntent(transcript string) Intent {
	raw := strings.Fields(transcript)
	folded := make([]string, len(raw))
	for i, tok := range raw {
		folded[i] = foldToken(tok)
	}

	marker := findSecretMarker(folded)

	pre := folded
	if marker > 0 {
		pre = folded[:marker]
	}
	action := classify(pre)

	intent := Intent{Action: action}
	siteTokens := folded
	if action == ActionSave && marker > 0 {
		// The password keeps the original casing; CleanSpokenSecret
		// strips the marker words along with the rest of the filler.
		intent.Secret = normalize.CleanSpokenSecret(strings.Join(raw[marker:], " "))
		siteTokens = pre
	}

	if action == ActionUnknown || action == ActionList {
		return intent
	}

	intent.SitePhrase = extractSitePhrase(siteTokens)
	if action == ActionRetrieve && intent.SitePhrase == "" {
		// "show all my passwords" and friends: a retrieve with no
		// target is a listing, which discloses no secrets.
		intent.Action = ActionList
	}
	return intent
}

// classify picks the action from the first recognized keyword. A "list"
// token anywhere wins outright since no other action sensibly contains it.
func classify(tokens []string) Action {
	for _, tok := range tokens {
		if tok == "list" {
			return ActionList
		}
	}
	for _, tok := range tokens {
		switch {
		case deleteWords[tok]:
			return ActionDelete
		case saveWords[tok]:
			return ActionSave
		case retrieveWords[tok]:
			return ActionRetrieve
		}
	}
	return ActionUnknown
}

// extractSitePhrase drops action keywords and filler, keeping the
// remaining tokens in spoken order.
func extractSitePhrase(tokens []string) string {
	var kept []string
	for _, tok := range tokens {
		if tok == "" || tok == "list" {
			continue
		}
		if saveWords[tok] || retrieveWords[tok] || deleteWords[tok] || fillerWords[tok] {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// findSecretMarker returns the index of the first marker sequence, or 0
// when none is present. A marker at position zero is never reported: a
// transcript cannot consist of only a password.
func findSecretMarker(tokens []string) int {
	for i := 1; i < len(tokens); i++ {
		for _, m := range secretMarkers {
			if i+len(m) > len(tokens) {
				continue
			}
			match := true
			for j, w := range m {
				if tokens[i+j] != w {
					match = false
					break
				}
			}
			if match {
				return i
			}
		}
	}
	return 0
}

// foldToken lowercases a token and trims surrounding punctuation,
// keeping apostrophes so contractions like "it's" survive.
func foldToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,!?;:\"()")
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
