package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/antoniostano/voicebridge/internal/config"
	"github.com/antoniostano/voicebridge/internal/observability"
	"github.com/antoniostano/voicebridge/internal/session"
)

const readyTimeout = 2 * time.Second

// Relay serves one upgraded client websocket until it ends.
type Relay interface {
	Serve(ctx context.Context, ws *websocket.Conn, assistantID string)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      config.Config
	relay    Relay
	sessions *session.Registry
	store    Pinger
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, relay Relay, sessions *session.Registry, store Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		relay:    relay,
		sessions: sessions,
		store:    store,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the router wrapped in request tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Router(), "voicebridge")
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws/{assistantID}", s.handleWS)
	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/sessions", s.handleListSessions)

	return r
}

// checkOrigin accepts non-browser clients, the configured origins and the
// server's own host.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AnyOrigin() {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if slices.ContainsFunc(s.cfg.AllowedOrigins, func(o string) bool {
		return strings.EqualFold(strings.TrimRight(o, "/"), origin)
	}) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.connections(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.Any("err", err))
			respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	assistantID := strings.TrimSpace(chi.URLParam(r, "assistantID"))
	if assistantID == "" {
		respondError(w, http.StatusBadRequest, "missing_assistant_id", "assistant id is required")
		return
	}
	if s.relay == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "relay not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", slog.String("assistant_id", assistantID), slog.Any("err", err))
		return
	}
	s.relay.Serve(r.Context(), conn, assistantID)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	resp := sessionsResponse{Assistants: []session.AssistantSessions{}}
	if s.sessions != nil {
		resp.Total = s.sessions.Total()
		if snap := s.sessions.Snapshot(); len(snap) > 0 {
			resp.Assistants = snap
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) connections() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.Total()
}

type sessionsResponse struct {
	Total      int                         `json:"total"`
	Assistants []session.AssistantSessions `json:"assistants"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
