package assistant

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDemoPrefersPublic(t *testing.T) {
	c := NewCatalog(
		Config{ID: "a1", Name: "private"},
		Config{ID: "a2", Name: "public", Public: true},
	)
	got, err := Resolve(context.Background(), c, DemoID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "a2" {
		t.Fatalf("ID = %q, want %q", got.ID, "a2")
	}
}

func TestResolveDemoFallsBackToFirst(t *testing.T) {
	c := NewCatalog(Config{ID: "a1"}, Config{ID: "a2"})
	got, err := Resolve(context.Background(), c, DemoID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("ID = %q, want %q", got.ID, "a1")
	}
}

func TestResolveDemoWithoutAssistants(t *testing.T) {
	_, err := Resolve(context.Background(), NewCatalog(), DemoID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestResolveUnknownID(t *testing.T) {
	c := NewCatalog(Config{ID: "a1"})
	if _, err := Resolve(context.Background(), c, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestEffectiveDefaults(t *testing.T) {
	cfg := Config{Voice: "Robot", SystemPrompt: "   "}
	if cfg.EffectiveVoice() != DefaultVoice {
		t.Fatalf("EffectiveVoice() = %q, want %q", cfg.EffectiveVoice(), DefaultVoice)
	}
	if cfg.EffectivePrompt() != DefaultSystemPrompt {
		t.Fatalf("EffectivePrompt() = %q", cfg.EffectivePrompt())
	}
	cfg.Voice = " Shimmer "
	if cfg.EffectiveVoice() != "shimmer" {
		t.Fatalf("EffectiveVoice() = %q, want shimmer", cfg.EffectiveVoice())
	}
	if got := cfg.Credential(" sk-env "); got != "sk-env" {
		t.Fatalf("Credential() = %q, want fallback", got)
	}
	cfg.APIKey = "sk-own"
	if got := cfg.Credential("sk-env"); got != "sk-own" {
		t.Fatalf("Credential() = %q, want own key", got)
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	c := NewCatalog(Config{ID: "a1", Functions: []string{"send_webhook"}})
	got, _ := c.Get(context.Background(), "a1")
	got.Functions[0] = "mutated"
	again, _ := c.Get(context.Background(), "a1")
	if again.Functions[0] != "send_webhook" {
		t.Fatalf("catalog entry mutated through returned copy")
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	t.Setenv("ASSISTANT_VOICE", "coral")
	path := filepath.Join(t.TempDir(), "assistants.yaml")
	body := `
defaults:
  system_prompt: Be brief.
assistants:
  - id: support
    name: Support desk
    functions: [send_webhook, search_pinecone]
    google_sheet_id: sheet-1
  - id: sales
    voice: echo
    public: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	support, err := c.Get(context.Background(), "support")
	if err != nil {
		t.Fatalf("Get(support) error = %v", err)
	}
	if support.Voice != "coral" || support.SystemPrompt != "Be brief." {
		t.Fatalf("support defaults = (%q, %q), want (coral, Be brief.)", support.Voice, support.SystemPrompt)
	}
	if len(support.Functions) != 2 || support.SheetID != "sheet-1" {
		t.Fatalf("support = %+v", support)
	}
	all, _ := c.List(context.Background())
	if all[0].ID != "support" || !all[1].Public || all[1].Voice != "echo" {
		t.Fatalf("List() order/fields = %+v", all)
	}
}

func TestLoadCatalogRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistants.yaml")
	body := "assistants:\n  - id: a\n  - id: a\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("LoadCatalog() error = nil, want duplicate id error")
	}
}
