package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/antoniostano/voicebridge/internal/assistant"
	"github.com/antoniostano/voicebridge/internal/config"
	"github.com/antoniostano/voicebridge/internal/functions"
	"github.com/antoniostano/voicebridge/internal/httpapi"
	"github.com/antoniostano/voicebridge/internal/memory"
	"github.com/antoniostano/voicebridge/internal/observability"
	"github.com/antoniostano/voicebridge/internal/realtime"
	"github.com/antoniostano/voicebridge/internal/relay"
	"github.com/antoniostano/voicebridge/internal/session"
	"github.com/antoniostano/voicebridge/internal/transcript"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Proxy      *relay.Proxy
	Sessions   *session.Registry
	Store      memory.Store
	Assistants assistant.Resolver
	Metrics    *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation store init failed: %w", err)
	}

	assistants, err := buildResolver(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	gateway := functions.NewRegistry(functions.Options{
		HTTPClient: &http.Client{
			Timeout:   cfg.FunctionHTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		PineconeAPIKey:    cfg.PineconeAPIKey,
		PineconeIndexHost: cfg.PineconeIndexHost,
		Logger:            logger.With(slog.String("component", "functions")),
	})

	sessions := session.NewRegistry()
	sessions.SetChangeHook(func(assistants, _ int) {
		metrics.SetActiveAssistants(assistants)
	})

	proxy := relay.New(relay.Deps{
		Assistants:    assistants,
		Functions:     gateway,
		Conversations: store,
		Transcripts:   transcript.New(cfg.TranscriptSinkURL, cfg.TranscriptRedactPII),
		Sessions:      sessions,
		Metrics:       metrics,
		Logger:        logger.With(slog.String("component", "relay")),
		Upstream: realtime.Options{
			URL:          cfg.RealtimeURL,
			DialTimeout:  cfg.RealtimeDialTimeout,
			PingInterval: cfg.RealtimePingInterval,
			PingTimeout:  cfg.RealtimePingTimeout,
			CloseTimeout: cfg.RealtimeCloseTimeout,
			SettleDelay:  cfg.FunctionSettleDelay,
		},
		FallbackAPIKey: cfg.OpenAIAPIKey,
	})

	api := httpapi.New(cfg, proxy, sessions, store, logger.With(slog.String("component", "http")))

	cleanup := func() error {
		sessions.CloseAll()
		var errs []error
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conversation store: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Proxy:      proxy,
		Sessions:   sessions,
		Store:      store,
		Assistants: assistants,
		Metrics:    metrics,
		Cleanup:    cleanup,
	}, nil
}

// buildResolver loads assistants from the YAML catalog or, when configured,
// from the assistants table next to the conversation store.
func buildResolver(ctx context.Context, cfg config.Config, store memory.Store) (assistant.Resolver, error) {
	switch cfg.AssistantsSource {
	case "postgres":
		pg, ok := store.(*memory.PostgresStore)
		if !ok {
			return nil, errors.New("ASSISTANTS_SOURCE=postgres requires a postgres conversation store")
		}
		r, err := assistant.NewPostgresResolver(ctx, pg.Pool())
		if err != nil {
			return nil, fmt.Errorf("assistant resolver init failed: %w", err)
		}
		return r, nil
	default:
		catalog, err := assistant.LoadCatalog(cfg.AssistantsFile)
		if err != nil {
			return nil, err
		}
		return catalog, nil
	}
}
