package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebridge/internal/assistant"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"send_webhook":          SendWebhook,
		" sendWebhook ":         SendWebhook,
		"Send Webhook":          SendWebhook,
		"send-webhook":          SendWebhook,
		"webhook":               SendWebhook,
		"searchPinecone":        SearchPinecone,
		"pinecone.search":       SearchPinecone,
		"Search_Knowledge-Base": SearchPinecone,
		"custom_tool":           "custom_tool",
		"":                      "",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestDefinitionsKeepsOrderAndDropsUnknown(t *testing.T) {
	r := NewRegistry(Options{})
	defs := r.Definitions([]string{"searchPinecone", "nope", "send-webhook", "search_pinecone"})
	require.Len(t, defs, 2)
	require.Equal(t, SearchPinecone, defs[0].Name)
	require.Equal(t, SendWebhook, defs[1].Name)
	require.Equal(t, "object", defs[1].Parameters["type"])
}

func TestExecuteUnknownFunction(t *testing.T) {
	r := NewRegistry(Options{})
	got := r.Execute(context.Background(), "launch_rocket", nil, CallContext{})
	require.Equal(t, "error", got["status"])
	require.Equal(t, "Unknown function: launch_rocket", got["error"])
}

func TestSendWebhookPostsEvent(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := NewRegistry(Options{HTTPClient: srv.Client()})
	call := CallContext{Assistant: assistant.Config{ID: "asst-1"}, ClientID: "client-1", WebhookURL: srv.URL}
	got := r.Execute(context.Background(), SendWebhook, map[string]any{
		"event":   "lead",
		"payload": map[string]any{"name": "Ann"},
	}, call)

	require.Equal(t, 200, got["status"])
	require.Equal(t, true, got["success"])
	require.Equal(t, map[string]any{"ok": true}, got["response"])
	require.Equal(t, "lead", received["event"])
	require.Equal(t, "asst-1", received["assistant_id"])
	require.Equal(t, "client-1", received["client_id"])
}

func TestSendWebhookReports404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRegistry(Options{HTTPClient: srv.Client()})
	got := r.Execute(context.Background(), SendWebhook, map[string]any{"url": srv.URL + "/missing", "event": "x"}, CallContext{})
	require.Equal(t, 404, got["status"])
	require.Equal(t, false, got["success"])
	require.Equal(t, srv.URL+"/missing", got["url"])
}

func TestSendWebhookRetriesServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	r := NewRegistry(Options{HTTPClient: srv.Client()})
	got := r.Execute(context.Background(), SendWebhook, map[string]any{"url": srv.URL, "event": "x"}, CallContext{})
	require.Equal(t, 202, got["status"])
	require.EqualValues(t, 2, hits.Load())
}

func TestSendWebhookTransportFailureAfterRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	r := NewRegistry(Options{HTTPClient: srv.Client()})
	got := r.Execute(context.Background(), SendWebhook, map[string]any{"url": srv.URL, "event": "x"}, CallContext{})
	require.Equal(t, 0, got["status"])
	require.Equal(t, false, got["success"])
	require.NotEmpty(t, got["error"])
	require.EqualValues(t, 2, hits.Load())
}

func TestSendWebhookWithoutURL(t *testing.T) {
	r := NewRegistry(Options{})
	got := r.Execute(context.Background(), SendWebhook, map[string]any{"event": "x"}, CallContext{})
	require.Equal(t, 0, got["status"])
	require.Equal(t, "webhook url is required", got["error"])
}

func TestSearchPinecone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/records/namespaces/faq/search", r.URL.Path)
		require.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		q := body["query"].(map[string]any)
		require.EqualValues(t, 2, q["top_k"])
		_, _ = w.Write([]byte(`{"result":{"hits":[{"_id":"d1","_score":0.9,"fields":{"chunk_text":"We open at 9."}}]}}`))
	}))
	defer srv.Close()

	r := NewRegistry(Options{HTTPClient: srv.Client(), PineconeAPIKey: "pc-key", PineconeIndexHost: srv.URL})
	got := r.Execute(context.Background(), "searchPinecone", map[string]any{
		"namespace": "faq",
		"query":     "opening hours",
		"top_k":     float64(2),
	}, CallContext{})

	require.Equal(t, 200, got["status"])
	matches := got["matches"].([]map[string]any)
	require.Len(t, matches, 1)
	require.Equal(t, "We open at 9.", matches[0]["text"])
}

func TestSearchPineconeNotConfigured(t *testing.T) {
	r := NewRegistry(Options{})
	got := r.Execute(context.Background(), SearchPinecone, map[string]any{"namespace": "a", "query": "b"}, CallContext{})
	require.Equal(t, "error", got["status"])
}
