// Package transcript delivers finished conversation turns to an external
// log such as a spreadsheet.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/voicebridge/internal/policy"
)

// Entry is one logged turn.
type Entry struct {
	SheetID        string         `json:"sheet_id"`
	AssistantID    string         `json:"assistant_id"`
	SessionID      string         `json:"session_id"`
	User           string         `json:"user"`
	Assistant      string         `json:"assistant"`
	FunctionResult map[string]any `json:"function_result,omitempty"`
	At             time.Time      `json:"at"`
}

type Sink interface {
	Log(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Log(context.Context, Entry) error { return nil }

// HTTPSink posts entries as JSON to an endpoint that appends them to the
// sheet named in the entry.
type HTTPSink struct {
	url       string
	redactPII bool
	client    *http.Client
}

func NewHTTPSink(url string, redactPII bool) *HTTPSink {
	return &HTTPSink{
		url:       strings.TrimSpace(url),
		redactPII: redactPII,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSink) Log(ctx context.Context, entry Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if s.redactPII {
		policy.RedactFields(&entry.User, &entry.Assistant)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send transcript entry: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("transcript sink status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
	return nil
}

// New returns an HTTPSink for url, or Nop when url is empty.
func New(url string, redactPII bool) Sink {
	if strings.TrimSpace(url) == "" {
		return Nop{}
	}
	return NewHTTPSink(url, redactPII)
}
