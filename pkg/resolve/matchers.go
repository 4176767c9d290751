package resolve

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/antzucaro/matchr"

	"github.com/voxvault/voxvault/pkg/catalog"
)

// Strategy scoring constants.
const (
	phoneticPrimaryScore   = 0.9
	phoneticSecondaryScore = 0.8
	partialFloor           = 0.6
)

// levenshtein is stateless and safe to share across goroutines.
var levenshtein = metrics.NewLevenshtein()

// candidate is a single strategy's best match.
type candidate struct {
	site  string
	score float64
}

// matchExact returns a score-1.0 candidate when text equals an alias
// verbatim. Aliases are already normalized, so comparison is literal.
func matchExact(text string, entries []catalog.Entry) (candidate, bool) {
	for _, e := range entries {
		for _, alias := range e.Aliases {
			if text == alias {
				return candidate{site: e.Canonical, score: 1.0}, true
			}
		}
	}
	return candidate{}, false
}

// matchFuzzy scores text against every alias with a normalized Levenshtein
// ratio in [0,100] and keeps the best alias at or above floor. The candidate
// score is ratio/100. Ties keep the earlier catalog entry.
func matchFuzzy(text string, entries []catalog.Entry, floor int) (candidate, bool) {
	best := candidate{}
	for _, e := range entries {
		for _, alias := range e.Aliases {
			ratio := strutil.Similarity(text, alias, levenshtein) * 100
			if ratio < float64(floor) {
				continue
			}
			if score := ratio / 100; score > best.score {
				best = candidate{site: e.Canonical, score: score}
			}
		}
	}
	return best, best.score > 0
}

// matchPhonetic compares double-metaphone codes of text and aliases. A
// primary-code match scores 0.9, a secondary-code match 0.8; anything
// weaker is rejected.
func matchPhonetic(text string, entries []catalog.Entry) (candidate, bool) {
	tp, ts := matchr.DoubleMetaphone(text)
	if tp == "" && ts == "" {
		return candidate{}, false
	}

	best := candidate{}
	for _, e := range entries {
		for _, alias := range e.Aliases {
			ap, as := matchr.DoubleMetaphone(alias)
			var score float64
			switch {
			case tp != "" && tp == ap:
				score = phoneticPrimaryScore
			case secondaryMatch(tp, ts, ap, as):
				score = phoneticSecondaryScore
			default:
				continue
			}
			if score > best.score {
				best = candidate{site: e.Canonical, score: score}
			}
		}
	}
	return best, best.score > 0
}

// secondaryMatch reports whether any remaining code pairing lines up once
// the primary codes differ.
func secondaryMatch(tp, ts, ap, as string) bool {
	if ts != "" && (ts == ap || ts == as) {
		return true
	}
	return tp != "" && tp == as
}

// matchPartial scores word overlap: a text word counts as matched when it
// contains or is contained by any alias word. The score is matched words
// over the longer of the two word counts, accepted at or above 0.6.
func matchPartial(text string, entries []catalog.Entry) (candidate, bool) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return candidate{}, false
	}

	best := candidate{}
	for _, e := range entries {
		for _, alias := range e.Aliases {
			aliasWords := strings.Fields(alias)
			if len(aliasWords) == 0 {
				continue
			}

			matched := 0
			for _, w := range words {
				if wordOverlap(w, aliasWords) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}

			den := len(words)
			if len(aliasWords) > den {
				den = len(aliasWords)
			}
			if score := float64(matched) / float64(den); score >= partialFloor && score > best.score {
				best = candidate{site: e.Canonical, score: score}
			}
		}
	}
	return best, best.score > 0
}

func wordOverlap(w string, aliasWords []string) bool {
	for _, aw := range aliasWords {
		if strings.Contains(aw, w) || strings.Contains(w, aw) {
			return true
		}
	}
	return false
}
