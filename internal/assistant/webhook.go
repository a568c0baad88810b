package assistant

import "regexp"

var webhookURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)URL\s+(?:вебхука|webhook):\s*(https?://[^\s"'<>]+)`),
	regexp.MustCompile(`(?i)(?:вебхука|webhook)\s+URL:\s*(https?://[^\s"'<>]+)`),
	regexp.MustCompile(`(?i)(https?://[^\s"'<>]+)`),
}

// ExtractWebhookURL finds the webhook target an operator wrote into a system
// prompt. Labelled URLs win over the first bare URL in the text.
func ExtractWebhookURL(prompt string) string {
	if prompt == "" {
		return ""
	}
	for _, re := range webhookURLPatterns {
		if m := re.FindStringSubmatch(prompt); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
