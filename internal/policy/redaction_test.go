package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactFieldsLeavesCleanTextAlone(t *testing.T) {
	user := "what time do you open"
	assistant := "Write to help@example.org"
	if !RedactFields(&user, &assistant, nil) {
		t.Fatalf("RedactFields() = false, want true")
	}
	if user != "what time do you open" {
		t.Fatalf("user = %q, want unchanged", user)
	}
	if assistant != "Write to [REDACTED_EMAIL]" {
		t.Fatalf("assistant = %q", assistant)
	}
}
