package functions

import (
	"strings"
	"unicode"
)

var aliases = map[string]string{
	"webhook":               SendWebhook,
	"sendwebhook":           SendWebhook,
	"send_web_hook":         SendWebhook,
	"pinecone":              SearchPinecone,
	"pinecone_search":       SearchPinecone,
	"searchpinecone":        SearchPinecone,
	"search_knowledge_base": SearchPinecone,
}

// Normalize maps UI labels, camelCase and kebab-case spellings of a function
// name onto its canonical snake_case name.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name) + 4)
	prevLower := false
	for _, r := range name {
		switch {
		case r == '-' || r == ' ' || r == '.' || r == '_':
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	out := strings.Trim(b.String(), "_")
	if canonical, ok := aliases[out]; ok {
		return canonical
	}
	return out
}
