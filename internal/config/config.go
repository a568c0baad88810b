package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	DefaultRealtimeURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-10-01"
	defaultPort        = "5050"
)

// Config contains all runtime settings for the voice bridge process.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         slog.Level
	LogFormat        string
	TracingEnabled   bool

	// AllowedOrigins holds the browser origins accepted on the websocket
	// upgrade. A single "*" accepts any origin.
	AllowedOrigins []string

	RealtimeURL          string
	OpenAIAPIKey         string
	RealtimeDialTimeout  time.Duration
	RealtimePingInterval time.Duration
	RealtimePingTimeout  time.Duration
	RealtimeCloseTimeout time.Duration
	FunctionSettleDelay  time.Duration

	DatabaseURL      string
	AssistantsSource string
	AssistantsFile   string

	TranscriptSinkURL   string
	TranscriptRedactPII bool

	PineconeAPIKey      string
	PineconeIndexHost   string
	FunctionHTTPTimeout time.Duration

	SessionJanitorInterval time.Duration
}

// Load reads environment variables and applies defaults.
func Load() (Config, error) {
	bind := stringsTrimSpace("BIND_ADDR")
	if bind == "" {
		bind = ":" + envOrDefault("PORT", defaultPort)
	}

	cfg := Config{
		BindAddr:               bind,
		ShutdownTimeout:        10 * time.Second,
		MetricsNamespace:       envOrDefault("METRICS_NAMESPACE", "voicebridge"),
		LogFormat:              strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		AllowedOrigins:         splitList(envOrDefault("CORS_ORIGINS", "*")),
		RealtimeURL:            envOrDefault("REALTIME_WS_URL", DefaultRealtimeURL),
		OpenAIAPIKey:           stringsTrimSpace("OPENAI_API_KEY"),
		RealtimeDialTimeout:    30 * time.Second,
		RealtimePingInterval:   30 * time.Second,
		RealtimePingTimeout:    120 * time.Second,
		RealtimeCloseTimeout:   15 * time.Second,
		FunctionSettleDelay:    500 * time.Millisecond,
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		AssistantsSource:       strings.ToLower(envOrDefault("ASSISTANTS_SOURCE", "file")),
		AssistantsFile:         stringsTrimSpace("ASSISTANTS_FILE"),
		TranscriptSinkURL:      stringsTrimSpace("TRANSCRIPT_SINK_URL"),
		TranscriptRedactPII:    true,
		PineconeAPIKey:         stringsTrimSpace("PINECONE_API_KEY"),
		PineconeIndexHost:      strings.TrimRight(stringsTrimSpace("PINECONE_INDEX_HOST"), "/"),
		FunctionHTTPTimeout:    15 * time.Second,
		SessionJanitorInterval: time.Minute,
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"REALTIME_DIAL_TIMEOUT", &cfg.RealtimeDialTimeout},
		{"REALTIME_PING_INTERVAL", &cfg.RealtimePingInterval},
		{"REALTIME_PING_TIMEOUT", &cfg.RealtimePingTimeout},
		{"REALTIME_CLOSE_TIMEOUT", &cfg.RealtimeCloseTimeout},
		{"FUNCTION_SETTLE_DELAY", &cfg.FunctionSettleDelay},
		{"FUNCTION_HTTP_TIMEOUT", &cfg.FunctionHTTPTimeout},
		{"SESSION_JANITOR_INTERVAL", &cfg.SessionJanitorInterval},
	}
	for _, d := range durations {
		v, err := durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	var err error
	cfg.TranscriptRedactPII, err = boolFromEnv("TRANSCRIPT_REDACT_PII", cfg.TranscriptRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.TracingEnabled, err = boolFromEnv("OTEL_TRACES", false)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel, err = levelFromEnv("LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RealtimeDialTimeout <= 0 {
		return fmt.Errorf("REALTIME_DIAL_TIMEOUT must be positive")
	}
	if c.RealtimePingInterval <= 0 || c.RealtimePingTimeout <= c.RealtimePingInterval {
		return fmt.Errorf("REALTIME_PING_TIMEOUT must be greater than REALTIME_PING_INTERVAL")
	}
	if c.FunctionSettleDelay < 0 {
		return fmt.Errorf("FUNCTION_SETTLE_DELAY must be >= 0")
	}
	if c.SessionJanitorInterval < time.Second {
		return fmt.Errorf("SESSION_JANITOR_INTERVAL must be at least 1s")
	}
	switch c.AssistantsSource {
	case "file":
	case "postgres":
		if !strings.HasPrefix(c.DatabaseURL, "postgres") {
			return fmt.Errorf("ASSISTANTS_SOURCE=postgres requires a postgres DATABASE_URL")
		}
	default:
		return fmt.Errorf("ASSISTANTS_SOURCE must be file or postgres")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if !strings.HasPrefix(c.RealtimeURL, "ws://") && !strings.HasPrefix(c.RealtimeURL, "wss://") {
		return fmt.Errorf("REALTIME_WS_URL must be a ws:// or wss:// URL")
	}
	return nil
}

// AnyOrigin reports whether the origin list is the wildcard.
func (c Config) AnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func levelFromEnv(key string, fallback slog.Level) (slog.Level, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback, fmt.Errorf("%s parse error: %w", key, err)
	}
	return lvl, nil
}
