package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/antoniostano/voicebridge/internal/config"
)

func TestBuildServesWithCatalog(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "assistants.yaml")
	if err := os.WriteFile(catalog, []byte("assistants:\n  - id: front-desk\n    api_key: sk-test\n    public: true\n"), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cfg := config.Config{
		MetricsNamespace: "test_app_build",
		AllowedOrigins:   []string{"*"},
		RealtimeURL:      config.DefaultRealtimeURL,
		AssistantsSource: "file",
		AssistantsFile:   catalog,
	}
	res, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	got, err := res.Assistants.Get(context.Background(), "front-desk")
	if err != nil {
		t.Fatalf("Get(front-desk) error = %v", err)
	}
	if !got.Public {
		t.Fatalf("Public = false, want true")
	}

	ts := httptest.NewServer(res.API.Handler())
	defer ts.Close()
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/sessions"} {
		r, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, r.StatusCode, http.StatusOK)
		}
	}
}

func TestBuildRejectsPostgresAssistantsWithoutPostgresStore(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace: "test_app_build_pg",
		AssistantsSource: "postgres",
	}
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("Build() error = nil, want resolver failure")
	}
}
