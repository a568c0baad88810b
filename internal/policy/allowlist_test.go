package policy

import "testing"

func TestNewAllowListDedupes(t *testing.T) {
	a := NewAllowList("send_webhook", "", "search_pinecone", "send_webhook")
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}
	if got := a.Names(); got[0] != "send_webhook" || got[1] != "search_pinecone" {
		t.Fatalf("Names() = %v, want declaration order", got)
	}
	if a.Allows("") {
		t.Fatalf("Allows(\"\") = true, want false")
	}
}

func TestDecideFunctionRejected(t *testing.T) {
	a := NewAllowList("search_pinecone")
	d := a.DecideFunction("send_webhook")
	if d.Allowed {
		t.Fatalf("Allowed = true, want false")
	}
	if d.Notice != "Error: function send_webhook is not enabled for this assistant." {
		t.Fatalf("Notice = %q", d.Notice)
	}
	if d.Result["status"] != "error" || d.Result["error"] != "Function send_webhook not allowed" {
		t.Fatalf("Result = %v", d.Result)
	}
	if !a.DecideFunction("search_pinecone").Allowed {
		t.Fatalf("search_pinecone should be allowed")
	}
}
