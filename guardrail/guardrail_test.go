package guardrail

import (
	"testing"
)

func TestHasHard(t *testing.T) {
	if HasHard(nil) {
		t.Fatal("empty list has no hard violation")
	}
	soft := []Violation{{Code: "brand_mentions", Severity: SeveritySoft}}
	if HasHard(soft) {
		t.Fatal("soft-only list reported hard")
	}
	mixed := append(soft, Violation{Code: "weapon", Severity: SeverityHard})
	if !HasHard(mixed) {
		t.Fatal("hard violation not reported")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != "no violations" {
		t.Fatalf("empty summary = %q", got)
	}

	violations := []Violation{
		{Code: "weapon", Severity: SeverityHard},
		{Code: "brand_mentions", Severity: SeveritySoft},
		{Code: "weapon", Severity: SeverityHard},
	}
	want := "hard:weapon x2, soft:brand_mentions"
	if got := Summarize(violations); got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}

	// Order is stable regardless of input order.
	reversed := []Violation{violations[1], violations[2], violations[0]}
	if got := Summarize(reversed); got != want {
		t.Fatalf("reordered summary = %q, want %q", got, want)
	}
}

func TestRegexPII(t *testing.T) {
	detector := NewRegexPII()

	cases := []struct {
		name string
		text string
		kind string
	}{
		{"email", "write to meg@example.com for details", "email"},
		{"phone", "call 555-123-4567 tomorrow", "phone"},
		{"ssn", "number 123-45-6789 on file", "ssn"},
		{"credit card", "card 4111 1111 1111 1111 expires soon", "credit_card"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			matches := detector.DetectPII(tc.text)
			found := false
			for _, m := range matches {
				if m.Kind == tc.kind && m.Count >= 1 {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s not detected in %q, matches = %+v", tc.kind, tc.text, matches)
			}
		})
	}

	t.Run("clean text", func(t *testing.T) {
		if matches := detector.DetectPII("Once upon a time a fox learned to share."); len(matches) != 0 {
			t.Fatalf("false positives: %+v", matches)
		}
	})

	t.Run("counts repeats", func(t *testing.T) {
		matches := detector.DetectPII("a@b.co and c@d.co")
		if len(matches) != 1 || matches[0].Kind != "email" || matches[0].Count != 2 {
			t.Fatalf("matches = %+v", matches)
		}
	})
}

func TestThresholdFallbacks(t *testing.T) {
	th := DefaultThresholds()
	if got := th.fearLimit("unknown"); got != 0.3 {
		t.Fatalf("fear fallback = %v, want strictest", got)
	}
	if got := th.violenceLimit("unknown"); got != 0.4 {
		t.Fatalf("violence fallback = %v, want strictest", got)
	}
	if got := th.imageLimit("unknown"); got != 0.5 {
		t.Fatalf("image fallback = %v", got)
	}
	if got := th.fearLimit(AgeGroup9to12); got != 0.5 {
		t.Fatalf("fear 9-12 = %v", got)
	}
	if got := th.imageLimit("horror_elements"); got != 0.6 {
		t.Fatalf("horror limit = %v", got)
	}
}
