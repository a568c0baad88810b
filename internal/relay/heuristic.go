package relay

import (
	"strings"

	"github.com/antoniostano/voicebridge/internal/functions"
)

// The realtime API does not always name the function on argument events.
// These guesses look at argument text only and can be wrong; they run only
// when no explicit name is known.

// guessFromFragment inspects the first argument fragment of a call.
func guessFromFragment(fragment string) string {
	switch {
	case strings.Contains(fragment, "url"), strings.Contains(fragment, "event"):
		return functions.SendWebhook
	case strings.Contains(fragment, "namespace"), strings.Contains(fragment, "query"):
		return functions.SearchPinecone
	default:
		return ""
	}
}

// guessFromArguments inspects a complete argument document.
func guessFromArguments(args string) string {
	switch {
	case strings.Contains(args, "url"):
		return functions.SendWebhook
	case strings.Contains(args, "namespace") && strings.Contains(args, "query"):
		return functions.SearchPinecone
	default:
		return ""
	}
}
