package guardrail

import (
	"regexp"

	"github.com/fableforge/storyflow/ports"
)

// RegexPII is the deterministic PII layer: plain regexes over the
// text, no network calls. Any match is a hard violation because
// children's stories must never carry personal data.
type RegexPII struct{}

var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"phone", regexp.MustCompile(`\+?\d{1,3}[-. (]*\d{3}[-. )]*\d{3}[-. ]*\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)},
}

// NewRegexPII returns the regex detector.
func NewRegexPII() *RegexPII { return &RegexPII{} }

// DetectPII reports each kind of personal data found and how often.
func (d *RegexPII) DetectPII(text string) []ports.PIIMatch {
	var out []ports.PIIMatch
	for _, p := range piiPatterns {
		if n := len(p.re.FindAllString(text, -1)); n > 0 {
			out = append(out, ports.PIIMatch{Kind: p.kind, Count: n})
		}
	}
	return out
}
