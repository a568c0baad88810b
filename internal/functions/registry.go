// Package functions executes the side-effecting operations a realtime model
// may call during a voice session.
package functions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/antoniostano/voicebridge/internal/assistant"
	"github.com/antoniostano/voicebridge/internal/memory"
)

const (
	SendWebhook    = "send_webhook"
	SearchPinecone = "search_pinecone"
)

// Definition describes a function to the realtime model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CallContext carries the session a function runs on behalf of.
type CallContext struct {
	Assistant      assistant.Config
	ClientID       string
	ConversationID string
	Conversations  memory.Store
	// WebhookURL is the target extracted from the system prompt, used when
	// the model omits one.
	WebhookURL string
}

// Gateway executes functions by normalized name. Expected failures come
// back as error-shaped results, never as Go errors.
type Gateway interface {
	Definitions(names []string) []Definition
	Execute(ctx context.Context, name string, args map[string]any, call CallContext) map[string]any
}

// Handler implements one function.
type Handler func(ctx context.Context, args map[string]any, call CallContext) map[string]any

type Options struct {
	HTTPClient        *http.Client
	PineconeAPIKey    string
	PineconeIndexHost string
	Logger            *slog.Logger
}

// Registry is the default Gateway. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	handlers map[string]Handler
	logger   *slog.Logger
}

var _ Gateway = (*Registry)(nil)

func NewRegistry(opts Options) *Registry {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
		logger:   opts.Logger,
	}

	wh := &webhookSender{client: opts.HTTPClient}
	r.Register(webhookDefinition, wh.send)

	pc := &pineconeSearcher{client: opts.HTTPClient, apiKey: opts.PineconeAPIKey, host: opts.PineconeIndexHost}
	r.Register(pineconeDefinition, pc.search)
	return r
}

// Register adds or replaces a function under its normalized name.
func (r *Registry) Register(def Definition, h Handler) {
	def.Name = Normalize(def.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	r.handlers[def.Name] = h
}

// Definitions returns the known definitions for names in request order,
// skipping unknown names and duplicates after normalization.
func (r *Registry) Definitions(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(names))
	out := make([]Definition, 0, len(names))
	for _, raw := range names {
		n := Normalize(raw)
		if _, dup := seen[n]; dup {
			continue
		}
		def, ok := r.defs[n]
		if !ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, def)
	}
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, call CallContext) map[string]any {
	name = Normalize(name)
	ctx, span := otel.Tracer("voicebridge/functions").Start(ctx, "function "+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("function.name", name),
		attribute.String("assistant.id", call.Assistant.ID),
	)

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		span.SetStatus(codes.Error, "unknown function")
		return ErrorResult(fmt.Sprintf("Unknown function: %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	result := h(ctx, args, call)
	if msg, failed := result["error"].(string); failed {
		span.SetStatus(codes.Error, msg)
	}
	r.logger.Debug("function executed",
		slog.String("function", name),
		slog.String("client_id", call.ClientID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result
}

// ErrorResult is the result shape for a failed call.
func ErrorResult(msg string) map[string]any {
	return map[string]any{"error": msg, "status": "error"}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
