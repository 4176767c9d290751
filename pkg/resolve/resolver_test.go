package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxvault/voxvault/pkg/catalog"
)

func newTestCatalog(t *testing.T, sites map[string][]string) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.json")
	data, err := json.Marshal(map[string]map[string][]string{"sites": sites})
	if err != nil {
		t.Fatalf("failed to encode catalog fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write catalog fixture: %v", err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cat
}

type fakeNormalizer struct {
	calls int
	fn    func(req NormalizeRequest) (NormalizeResult, error)
}

func (f *fakeNormalizer) Normalize(_ context.Context, req NormalizeRequest) (NormalizeResult, error) {
	f.calls++
	return f.fn(req)
}

func assertNoMatch(t *testing.T, res Result) {
	t.Helper()
	if res.Site != "" || res.Confidence != 0 || res.Method != MethodNone || res.NeedsConfirmation {
		t.Errorf("want no-match result, got site=%q confidence=%v method=%q needs_confirmation=%v",
			res.Site, res.Confidence, res.Method, res.NeedsConfirmation)
	}
}

func TestResolveExactAlias(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"gmail": {"gmail", "google mail", "googlemail"},
	})
	r := New(cat, DefaultThresholds(), nil)

	for _, alias := range []string{"gmail", "google mail", "googlemail", "Google Mail", "google mail dot com"} {
		res := r.Resolve(context.Background(), alias)
		if res.Site != "gmail" {
			t.Errorf("Resolve(%q).Site = %q, want %q", alias, res.Site, "gmail")
		}
		if res.Confidence != 1.0 {
			t.Errorf("Resolve(%q).Confidence = %v, want 1.0", alias, res.Confidence)
		}
		if res.Method != MethodExact {
			t.Errorf("Resolve(%q).Method = %q, want %q", alias, res.Method, MethodExact)
		}
		if res.NeedsConfirmation {
			t.Errorf("Resolve(%q) should not need confirmation", alias)
		}
	}
}

func TestResolveEmptyInput(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{"gmail": {"gmail"}})
	llm := &fakeNormalizer{fn: func(NormalizeRequest) (NormalizeResult, error) {
		return NormalizeResult{Site: "gmail", Confidence: 1}, nil
	}}
	r := New(cat, DefaultThresholds(), llm)

	for _, in := range []string{"", "   \t", "!!!"} {
		res := r.Resolve(context.Background(), in)
		assertNoMatch(t, res)
		if res.Transcript != in {
			t.Errorf("Resolve(%q).Transcript = %q, want the raw input", in, res.Transcript)
		}
	}
	if llm.calls != 0 {
		t.Errorf("empty input reached the llm %d times, want 0", llm.calls)
	}
}

func TestResolveConfirmationBand(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{"facebook": {"facebook"}})
	r := New(cat, DefaultThresholds(), nil)

	tests := []struct {
		transcript string
		confidence float64
	}{
		{"facbok", 0.75},    // two edits over length 8
		{"facebool", 0.875}, // one edit over length 8
	}

	for _, tt := range tests {
		res := r.Resolve(context.Background(), tt.transcript)
		if res.Site != "facebook" {
			t.Fatalf("Resolve(%q).Site = %q, want %q", tt.transcript, res.Site, "facebook")
		}
		if res.Method != MethodFuzzy {
			t.Errorf("Resolve(%q).Method = %q, want %q", tt.transcript, res.Method, MethodFuzzy)
		}
		if !almostEqual(res.Confidence, tt.confidence) {
			t.Errorf("Resolve(%q).Confidence = %v, want %v", tt.transcript, res.Confidence, tt.confidence)
		}
		if !res.NeedsConfirmation {
			t.Errorf("Resolve(%q) in the confirmation band must need confirmation", tt.transcript)
		}
	}
}

// A typo that keeps the phonetic code resolves through the phonetic
// strategy, which outscores the fuzzy ratio and clears the accept line.
func TestResolvePhoneticTypoAutoAccepts(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"facebook": {"facebook"},
		"gmail":    {"gmail"},
	})
	r := New(cat, DefaultThresholds(), nil)

	tests := []struct {
		transcript string
		site       string
	}{
		{"facebok", "facebook"},
		{"gmial", "gmail"},
	}

	for _, tt := range tests {
		res := r.Resolve(context.Background(), tt.transcript)
		if res.Site != tt.site {
			t.Fatalf("Resolve(%q).Site = %q, want %q", tt.transcript, res.Site, tt.site)
		}
		if res.Method != MethodPhonetic {
			t.Errorf("Resolve(%q).Method = %q, want %q", tt.transcript, res.Method, MethodPhonetic)
		}
		if !almostEqual(res.Confidence, phoneticPrimaryScore) {
			t.Errorf("Resolve(%q).Confidence = %v, want %v", tt.transcript, res.Confidence, phoneticPrimaryScore)
		}
		if res.NeedsConfirmation {
			t.Errorf("Resolve(%q) above the accept threshold should not need confirmation", tt.transcript)
		}
	}
}

func TestResolvePartialOverlap(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"wells fargo": {"wells fargo", "wells fargo bank"},
		"instagram":   {"instagram"},
	})
	r := New(cat, DefaultThresholds(), nil)

	res := r.Resolve(context.Background(), "wells fargo bank account")
	if res.Site != "wells fargo" || res.Method != MethodPartial {
		t.Fatalf("Resolve() = (%q, %q), want (%q, %q)", res.Site, res.Method, "wells fargo", MethodPartial)
	}
	if !almostEqual(res.Confidence, 0.75) || !res.NeedsConfirmation {
		t.Errorf("Resolve() confidence = %v needs_confirmation = %v, want 0.75 and true",
			res.Confidence, res.NeedsConfirmation)
	}

	// A shorthand word fully contained in an alias is a full-score match.
	res = r.Resolve(context.Background(), "insta")
	if res.Site != "instagram" || res.Method != MethodPartial {
		t.Fatalf("Resolve() = (%q, %q), want (%q, %q)", res.Site, res.Method, "instagram", MethodPartial)
	}
	if res.Confidence != 1.0 || res.NeedsConfirmation {
		t.Errorf("Resolve() confidence = %v needs_confirmation = %v, want 1.0 and false",
			res.Confidence, res.NeedsConfirmation)
	}
}

func TestResolveNoMatchBelowFloor(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{"gmail": {"gmail"}})
	r := New(cat, DefaultThresholds(), nil)

	// "mail zzz" overlaps gmail on one of two words (0.5), under the
	// partial floor; fuzzy and phonetic find nothing either.
	for _, in := range []string{"zzz qqq", "mail zzz"} {
		assertNoMatch(t, r.Resolve(context.Background(), in))
	}
}

func TestResolveLLMReplacesHeuristic(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"gmail":    {"gmail"},
		"facebook": {"facebook"},
	})

	var gotReq NormalizeRequest
	llm := &fakeNormalizer{fn: func(req NormalizeRequest) (NormalizeResult, error) {
		gotReq = req
		return NormalizeResult{Site: "gmail", Confidence: 0.93}, nil
	}}
	r := New(cat, DefaultThresholds(), llm)

	res := r.Resolve(context.Background(), "the google email thing")
	if llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", llm.calls)
	}
	if res.Site != "gmail" || res.Method != MethodLLM {
		t.Fatalf("Resolve() = (%q, %q), want (%q, %q)", res.Site, res.Method, "gmail", MethodLLM)
	}
	if res.Confidence != 0.93 {
		t.Errorf("Resolve().Confidence = %v, want 0.93", res.Confidence)
	}
	// Above the accept threshold, even via the llm, no confirmation.
	if res.NeedsConfirmation {
		t.Error("Resolve() above the accept threshold should not need confirmation")
	}

	if len(gotReq.Transcripts) != 1 || gotReq.Transcripts[0] != "the google email thing" {
		t.Errorf("llm request transcripts = %v, want the raw transcript", gotReq.Transcripts)
	}
	if len(gotReq.Catalog) != 2 {
		t.Errorf("llm request catalog = %v, want both canonical names", gotReq.Catalog)
	}
	if gotReq.Hints["normalized"] != "the google email thing" {
		t.Errorf("llm request hints = %v, want the normalized transcript", gotReq.Hints)
	}
}

func TestResolveLLMConfirmationBand(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"gmail":    {"gmail"},
		"facebook": {"facebook"},
	})
	llm := &fakeNormalizer{fn: func(NormalizeRequest) (NormalizeResult, error) {
		return NormalizeResult{Site: "facebook", Confidence: 0.8}, nil
	}}
	r := New(cat, DefaultThresholds(), llm)

	res := r.Resolve(context.Background(), "the blue one")
	if res.Site != "facebook" || res.Method != MethodLLM {
		t.Fatalf("Resolve() = (%q, %q), want (%q, %q)", res.Site, res.Method, "facebook", MethodLLM)
	}
	if !res.NeedsConfirmation {
		t.Error("llm result inside the confirmation band must need confirmation")
	}
}

func TestResolveLLMWeakerResultKept(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"gmail":    {"gmail"},
		"facebook": {"facebook"},
	})
	llm := &fakeNormalizer{fn: func(NormalizeRequest) (NormalizeResult, error) {
		return NormalizeResult{Site: "gmail", Confidence: 0.5}, nil
	}}
	r := New(cat, DefaultThresholds(), llm)

	res := r.Resolve(context.Background(), "facbok")
	if llm.calls != 1 {
		t.Fatalf("llm calls = %d, want 1", llm.calls)
	}
	if res.Site != "facebook" || res.Method != MethodFuzzy {
		t.Errorf("Resolve() = (%q, %q), want the heuristic result kept", res.Site, res.Method)
	}
}

func TestResolveLLMContractViolationsKeepHeuristic(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{
		"gmail":    {"gmail"},
		"facebook": {"facebook"},
	})

	tests := []struct {
		name string
		fn   func(NormalizeRequest) (NormalizeResult, error)
	}{
		{"unavailable", func(NormalizeRequest) (NormalizeResult, error) {
			return NormalizeResult{}, errors.New("connection refused")
		}},
		{"malformed", func(NormalizeRequest) (NormalizeResult, error) {
			return NormalizeResult{}, ErrMalformedResponse
		}},
		{"site not in catalog", func(NormalizeRequest) (NormalizeResult, error) {
			return NormalizeResult{Site: "myspace", Confidence: 0.99}, nil
		}},
		{"null site", func(NormalizeRequest) (NormalizeResult, error) {
			return NormalizeResult{Site: "", Confidence: 0.9}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(cat, DefaultThresholds(), &fakeNormalizer{fn: tt.fn})

			// With a heuristic candidate, it is kept untouched.
			res := r.Resolve(context.Background(), "facbok")
			if res.Site != "facebook" || res.Method != MethodFuzzy || !res.NeedsConfirmation {
				t.Errorf("Resolve(%q) = (%q, %q, confirm=%v), want the heuristic result kept",
					"facbok", res.Site, res.Method, res.NeedsConfirmation)
			}

			// Without one, the outcome stays a clean no-match.
			assertNoMatch(t, r.Resolve(context.Background(), "zzz qqq"))
		})
	}
}

func TestResolveNoEscalationWhenConfident(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{"facebook": {"facebook"}})
	llm := &fakeNormalizer{fn: func(NormalizeRequest) (NormalizeResult, error) {
		return NormalizeResult{Site: "facebook", Confidence: 1}, nil
	}}
	r := New(cat, DefaultThresholds(), llm)

	// Exact match: accepted before escalation is considered.
	r.Resolve(context.Background(), "facebook")
	// 0.875 is under accept but at or above the escalation threshold.
	r.Resolve(context.Background(), "facebool")

	if llm.calls != 0 {
		t.Errorf("llm calls = %d, want 0", llm.calls)
	}
}

func TestResolveCustomThresholds(t *testing.T) {
	cat := newTestCatalog(t, map[string][]string{"facebook": {"facebook"}})
	th := Thresholds{Accept: 0.7, LLMEscalateBelow: 0.6, ConfirmFloor: 0.5, FuzzyFloor: 70}
	r := New(cat, th, nil)

	// 0.75 clears the lowered accept threshold outright.
	res := r.Resolve(context.Background(), "facbok")
	if res.Site != "facebook" || res.NeedsConfirmation {
		t.Errorf("Resolve() = (%q, confirm=%v), want auto-accepted %q", res.Site, res.NeedsConfirmation, "facebook")
	}
}
