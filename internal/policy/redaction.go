package policy

import "regexp"

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Card numbers run before phones so long digit runs are not tagged as phones.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card numbers and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		out = rule.pattern.ReplaceAllString(out, rule.marker)
	}
	return out, out != input
}

// RedactFields applies RedactPII in place and reports whether any field
// changed.
func RedactFields(fields ...*string) bool {
	changed := false
	for _, f := range fields {
		if f == nil || *f == "" {
			continue
		}
		var c bool
		*f, c = RedactPII(*f)
		changed = changed || c
	}
	return changed
}
