// Package resolve maps voice transcripts to canonical site names.
//
// Resolution runs a fixed cascade of matching strategies over the catalog
// (exact, fuzzy, phonetic, partial), optionally escalates weak results to an
// LLM collaborator, and applies a confirmation policy so callers know
// whether a match may be acted on directly or needs an explicit yes from
// the user first.
package resolve

import (
	"context"

	"github.com/voxvault/voxvault/internal/logging"
	"github.com/voxvault/voxvault/pkg/catalog"
	"github.com/voxvault/voxvault/pkg/normalize"
)

// Method identifies the strategy that produced a resolution.
type Method string

// Resolution methods, in cascade order.
const (
	MethodNone     Method = "none"
	MethodExact    Method = "exact"
	MethodFuzzy    Method = "fuzzy"
	MethodPhonetic Method = "phonetic"
	MethodPartial  Method = "partial"
	MethodLLM      Method = "llm"
)

// Result is the outcome of resolving a transcript.
//
// A Result with an empty Site always has Confidence 0, Method "none" and
// NeedsConfirmation false. Results are values and are never mutated after
// being returned.
type Result struct {
	Transcript        string  `json:"transcript"`
	Normalized        string  `json:"normalized"`
	Site              string  `json:"site,omitempty"`
	Confidence        float64 `json:"confidence"`
	Method            Method  `json:"method"`
	NeedsConfirmation bool    `json:"needs_confirmation"`
}

// Matched reports whether the resolution produced a usable site.
func (r Result) Matched() bool {
	return r.Site != ""
}

// Thresholds are the confidence cut-offs of the resolution policy.
type Thresholds struct {
	// Accept is the confidence at or above which a match is returned
	// without confirmation.
	Accept float64

	// LLMEscalateBelow hands results under this confidence to the LLM
	// collaborator when one is configured.
	LLMEscalateBelow float64

	// ConfirmFloor is the lowest confidence that still produces a match.
	// Matches under Accept but at or above this floor require explicit
	// confirmation; anything below resolves to no match.
	ConfirmFloor float64

	// FuzzyFloor is the minimum similarity ratio (0-100) the fuzzy
	// strategy accepts.
	FuzzyFloor int
}

// DefaultThresholds returns the stock resolution policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Accept:           0.88,
		LLMEscalateBelow: 0.82,
		ConfirmFloor:     0.75,
		FuzzyFloor:       70,
	}
}

// Resolver resolves transcripts against a site catalog.
type Resolver struct {
	cat        *catalog.Catalog
	thresholds Thresholds
	llm        Normalizer
}

// New returns a Resolver over cat. llm may be nil, which disables LLM
// escalation entirely.
func New(cat *catalog.Catalog, thresholds Thresholds, llm Normalizer) *Resolver {
	return &Resolver{cat: cat, thresholds: thresholds, llm: llm}
}

// Resolve maps a transcript to a catalog site.
//
// Ordinary "no match" is not an error: it comes back as a Result with an
// empty Site. The context bounds only the optional LLM escalation; a
// timeout there degrades to the heuristic result.
func (r *Resolver) Resolve(ctx context.Context, transcript string) Result {
	res := Result{Transcript: transcript, Method: MethodNone}

	res.Normalized = normalize.Normalize(transcript)
	if res.Normalized == "" {
		return res
	}

	best := r.bestMatch(res.Normalized)
	res.Site = best.site
	res.Confidence = best.score
	res.Method = best.method

	if res.Confidence >= r.thresholds.Accept {
		return res
	}

	if r.llm != nil && res.Confidence < r.thresholds.LLMEscalateBelow {
		r.escalate(ctx, &res)
	}

	switch {
	case res.Confidence >= r.thresholds.Accept:
		// The collaborator lifted the result above the accept line.
	case res.Site != "" && res.Confidence >= r.thresholds.ConfirmFloor:
		res.NeedsConfirmation = true
	default:
		res.Site = ""
		res.Confidence = 0
		res.Method = MethodNone
		res.NeedsConfirmation = false
	}
	return res
}

type strategyMatch struct {
	site   string
	score  float64
	method Method
}

// bestMatch runs the four strategies in declaration order and keeps the
// single highest-scoring candidate. Later strategies replace the current
// best only on a strictly greater score, so ties resolve to the earlier
// strategy.
func (r *Resolver) bestMatch(text string) strategyMatch {
	entries := r.cat.Entries()
	best := strategyMatch{method: MethodNone}

	if c, ok := matchExact(text, entries); ok && c.score > best.score {
		best = strategyMatch{site: c.site, score: c.score, method: MethodExact}
	}
	if c, ok := matchFuzzy(text, entries, r.thresholds.FuzzyFloor); ok && c.score > best.score {
		best = strategyMatch{site: c.site, score: c.score, method: MethodFuzzy}
	}
	if c, ok := matchPhonetic(text, entries); ok && c.score > best.score {
		best = strategyMatch{site: c.site, score: c.score, method: MethodPhonetic}
	}
	if c, ok := matchPartial(text, entries); ok && c.score > best.score {
		best = strategyMatch{site: c.site, score: c.score, method: MethodPartial}
	}
	return best
}

// escalate consults the LLM collaborator and replaces res when the model
// names a catalog site with strictly higher confidence. Any failure or
// contract violation keeps the heuristic result untouched.
func (r *Resolver) escalate(ctx context.Context, res *Result) {
	req := NormalizeRequest{
		Transcripts: []string{res.Transcript},
		Catalog:     r.cat.Canonicals(),
		Hints:       map[string]string{"normalized": res.Normalized},
	}
	if res.Site != "" {
		req.Hints["candidate"] = res.Site
	}

	out, err := r.llm.Normalize(ctx, req)
	if err != nil {
		logging.Log.Debugf("resolve: llm escalation unavailable: %v", err)
		return
	}
	if out.Site == "" {
		// The collaborator saw nothing better in the catalog.
		return
	}

	canonical, ok := r.cat.CanonicalFor(out.Site)
	if !ok {
		logging.Log.Debugf("resolve: llm proposed %q, which is not in the catalog", out.Site)
		return
	}
	if out.Confidence > res.Confidence {
		res.Site = canonical
		res.Confidence = out.Confidence
		res.Method = MethodLLM
	}
}
