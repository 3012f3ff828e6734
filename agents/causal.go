package agents

import "strings"

// CausalKeywords is the fixed 13-entry catalog every market summary bullet
// must contain at least one token from, ported verbatim from the original
// implementation's CAUSAL_KEYWORDS (app/agents/summary_generation_agent.py).
var CausalKeywords = []string{
	"due to",
	"after",
	"following",
	"driven by",
	"as",
	"because",
	"on account of",
	"amid",
	"on the back of",
	"triggered by",
	"led by",
	"supported by",
	"weighed by",
}

// HasCausalLanguage reports whether text contains at least one token from
// CausalKeywords, case-insensitive. This is the deterministic
// post-processing check enforced on every MarketSummaryBullet; the model is
// never trusted to self-certify causal language.
func HasCausalLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range CausalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
