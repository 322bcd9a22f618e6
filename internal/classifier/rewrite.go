package classifier

import (
	"regexp"
	"strings"
)

// vendorContextKeywords gate the persona rewrite: a message is only
// rewritten when it talks about vendor offerings, not for arbitrary
// first-person text.
var vendorContextKeywords = []string{
	"tools", "platform", "solution", "product", "service", "technology",
	"benefit", "help", "value", "offer", "provide", "capabilities",
	"talent", "hiring", "recruitment", "ai", "workforce", "employee",
}

var (
	rewriteOur   = regexp.MustCompile(`\b[Oo]ur\b`)
	rewriteWe    = regexp.MustCompile(`\b[Ww]e\b`)
	rewriteMy    = regexp.MustCompile(`\b[Mm]y\b`)
	rewriteIVerb = regexp.MustCompile(`\bI (offer|provide|have)\b`)
)

var iVerbForms = map[string]string{
	"offer":   "offers",
	"provide": "provides",
	"have":    "has",
}

// PersonaRewriter rewrites first-person vendor language into third
// person so prompts and outputs speak about the vendor by name.
type PersonaRewriter struct {
	vendor string
}

// NewPersonaRewriter creates a rewriter for the given vendor name.
func NewPersonaRewriter(vendor string) *PersonaRewriter {
	return &PersonaRewriter{vendor: vendor}
}

// Vendor returns the configured vendor name.
func (p *PersonaRewriter) Vendor() string {
	return p.vendor
}

// Rewrite replaces first-person pronouns with the vendor name when the
// text is about vendor offerings. Applying Rewrite to its own output
// is a no-op: the substitutions remove every pattern they match.
func (p *PersonaRewriter) Rewrite(text string) string {
	if p.vendor == "" || !p.hasVendorContext(text) {
		return text
	}

	possessive := p.vendor + "'s"
	out := rewriteOur.ReplaceAllString(text, possessive)
	out = rewriteMy.ReplaceAllString(out, possessive)
	out = rewriteIVerb.ReplaceAllStringFunc(out, func(match string) string {
		verb := strings.TrimPrefix(match, "I ")
		return p.vendor + " " + iVerbForms[verb]
	})
	out = rewriteWe.ReplaceAllString(out, p.vendor)
	return out
}

func (p *PersonaRewriter) hasVendorContext(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range vendorContextKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
