package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/voxvault/voxvault/pkg/vault"
)

// WeakPassword flags one entry below the acceptable strength floor.
type WeakPassword struct {
	// Site is included only when the analyzer was built with site
	// names enabled.
	Site     string `json:"site,omitempty"`
	Length   int    `json:"length"`
	Strength string `json:"strength"`
}

// ReusedGroup is a set of entries sharing one password.
type ReusedGroup struct {
	Sites []string `json:"sites,omitempty"`
	Count int      `json:"count"`
}

// Report is the offline security assessment of a vault's entries.
type Report struct {
	Entries     int            `json:"entries"`
	Score       int            `json:"score"`
	Weak        []WeakPassword `json:"weak,omitempty"`
	Reused      []ReusedGroup  `json:"reused,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Analyzer computes security reports. Reuse grouping compares
// HMAC-SHA256 digests under a key generated per analyzer and never
// persisted, so plaintext passwords stay out of the report path and
// digests cannot be correlated across runs.
type Analyzer struct {
	hmacKey      []byte
	includeSites bool
}

// NewAnalyzer builds an analyzer with a fresh session key. With
// includeSites false, the report names no sites, only counts.
func NewAnalyzer(includeSites bool) (*Analyzer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("security: failed to generate session key: %w", err)
	}
	return &Analyzer{hmacKey: key, includeSites: includeSites}, nil
}

// Analyze builds the report. The score has two components worth 25
// points each, average strength and password uniqueness, scaled to 100.
// An empty vault scores 100.
func (a *Analyzer) Analyze(entries []vault.Entry) *Report {
	rep := &Report{Entries: len(entries)}
	if len(entries) == 0 {
		rep.Score = 100
		return rep
	}

	rep.Weak = a.findWeak(entries)
	rep.Reused = a.findReused(entries)
	rep.Score = (a.strengthScore(entries) + a.uniquenessScore(entries)) * 2
	rep.Suggestions = suggestions(rep)
	return rep
}

func (a *Analyzer) findWeak(entries []vault.Entry) []WeakPassword {
	var weak []WeakPassword
	for _, e := range entries {
		s := PasswordStrength(e.Password)
		if s != StrengthWeak {
			continue
		}
		w := WeakPassword{Length: len([]rune(e.Password)), Strength: s.String()}
		if a.includeSites {
			w.Site = e.Site
		}
		weak = append(weak, w)
	}
	return weak
}

// findReused groups entries by the digest of their trimmed password and
// keeps groups of two or more, most duplicated first.
func (a *Analyzer) findReused(entries []vault.Entry) []ReusedGroup {
	byDigest := make(map[string][]string)
	for _, e := range entries {
		value := strings.TrimSpace(e.Password)
		if value == "" {
			continue
		}
		d := a.digest(value)
		byDigest[d] = append(byDigest[d], e.Site)
	}

	var groups []ReusedGroup
	for _, sites := range byDigest {
		if len(sites) <= 1 {
			continue
		}
		sort.Strings(sites)
		g := ReusedGroup{Count: len(sites)}
		if a.includeSites {
			g.Sites = sites
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		// Equal counts order by member sites so output is stable.
		return strings.Join(groups[i].Sites, ",") < strings.Join(groups[j].Sites, ",")
	})
	return groups
}

// strengthScore averages the per-entry strength points, 0 to 25.
func (a *Analyzer) strengthScore(entries []vault.Entry) int {
	total := 0
	for _, e := range entries {
		total += PasswordStrength(e.Password).points()
	}
	score := total / len(entries)
	if score > 25 {
		score = 25
	}
	return score
}

// uniquenessScore is the unique-password ratio scaled to 0-25.
func (a *Analyzer) uniquenessScore(entries []vault.Entry) int {
	unique := make(map[string]bool)
	counted := 0
	for _, e := range entries {
		value := strings.TrimSpace(e.Password)
		if value == "" {
			continue
		}
		counted++
		unique[a.digest(value)] = true
	}
	if counted == 0 {
		return 25
	}
	return int(float64(len(unique)) / float64(counted) * 25)
}

func (a *Analyzer) digest(value string) string {
	h := hmac.New(sha256.New, a.hmacKey)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

func suggestions(rep *Report) []string {
	var out []string
	if len(rep.Weak) > 0 {
		out = append(out, "Replace weak passwords with longer ones (14+ characters)")
	}
	if len(rep.Reused) > 0 {
		out = append(out, "Use a unique password for every site")
	}
	return out
}
